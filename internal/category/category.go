// Package category implements auto-categorisation and subject-based scope
// inference for memory text. Ported verbatim (pattern lists, ordering, and
// scoring) from original_source/categories.py.
package category

import (
	"regexp"

	"github.com/mmesh/memorymesh/internal/model"
)

type categoryPatterns struct {
	category model.Category
	patterns []*regexp.Regexp
}

// categoryPatternTable is tried in order; the first category with a match
// wins. Ordered from most specific to least specific so narrow categories
// beat broad ones.
var categoryPatternTable = []categoryPatterns{
	{model.CategoryGuardrail, compileAll(
		`\bnever\b`, `\bdon'?t\b`, `\bmust not\b`, `\bavoid\b`, `\bdo not\b`,
		`\bforbid`, `\bprohibit`, `\brule:\s`,
	)},
	{model.CategoryMistake, compileAll(
		`\bmistake\b`, `\bbug\b`, `\bbroke\b`, `\bforgot\b`, `\bshould have\b`,
		`\blesson\b`, `\blearned\b`, `\bregret\b`, `\baccident`,
	)},
	{model.CategoryPersonality, compileAll(
		`\bI am\b`, `\bI work\b`, `\bmy role\b`, `\bsenior\b`, `\bjunior\b`,
		`\bmy background\b`, `\byears? of experience\b`, `\bmy name\b`,
	)},
	{model.CategoryPreference, compileAll(
		`\bprefer\b`, `\balways use\b`, `\blike to\b`, `\bstyle\b`,
		`\bfavou?rite\b`, `\bdefault to\b`,
	)},
	{model.CategoryQuestion, compileAll(
		`\bwhy\b.*\?`, `\bhow\b.*\?`, `\bwhat if\b`, `\bconcern\b`,
		`\bwonder\b`, `\bcurious\b`,
	)},
	{model.CategoryDecision, compileAll(
		`\bdecided\b`, `\bchose\b`, `\bpicked\b`, `\bapproach\b`,
		`\barchitecture\b`, `\bwent with\b`, `\bselected\b`,
	)},
	{model.CategoryPattern, compileAll(
		`\bconvention\b`, `\bpattern\b`, `\bstyle guide\b`, `\balways do\b`,
		`\bcoding standard\b`, `\bbest practice\b`,
	)},
	{model.CategorySessionSummary, compileAll(
		`\bsession summary\b`, `\bsummary of\b.*\bsession\b`, `\bwhat we did\b`,
		`\baccomplished\b`,
	)},
}

var userSubjectPatterns = compileAll(
	`\buser prefers?\b`, `\buser likes?\b`, `\buser wants?\b`, `\buser hates?\b`,
	`\buser always\b`, `\buser never\b`, `\buser['’]s\b`,
	`\b[A-Z][a-z]+['’]s (?:pattern|workflow|habit|style|preference)`,
	`\bacross all projects?\b`, `\bin every project\b`, `\bglobal preference\b`,
	`\bglobal setting\b`, `\binteraction pattern`, `\bcommunication style\b`,
	`\bcoding style\b`, `\bworkflow preference\b`, `\bpersonal preference\b`,
)

var projectSubjectPatterns = compileAll(
	`\bsrc/`, `\btests?/`, `\b\w+\.py\b`, `\b\w+\.ts\b`, `\b\w+\.js\b`,
	`\b\w+\.go\b`, `\b\w+\.rs\b`, `\bpyproject\.toml\b`, `\bpackage\.json\b`,
	`\bCargo\.toml\b`, `\bgo\.mod\b`, `\bCLAUDE\.md\b`, `\bAGENTS\.md\b`,
	`\bimplementation state\b`, `\bimplemented\b.*\b\d{4}-\d{2}-\d{2}\b`,
	`\bv\d+\.\d+\.\d+\b.*\b\d{4}-\d{2}-\d{2}\b`, `\btests? pass`,
	`\bcommit\b.*\b[0-9a-f]{7,}\b`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// AutoCategorize detects the most likely category for text. A
// "category" hint in metadata (if it names a recognised category) takes
// precedence over pattern matching; the fallback when nothing matches is
// CategoryContext.
func AutoCategorize(text string, metadata map[string]any) model.Category {
	if metadata != nil {
		if hint, ok := metadata["category"]; ok {
			if s, ok := hint.(string); ok {
				c := model.Category(s)
				if c.Valid() {
					return c
				}
			}
		}
	}

	for _, entry := range categoryPatternTable {
		for _, p := range entry.patterns {
			if p.MatchString(text) {
				return entry.category
			}
		}
	}
	return model.CategoryContext
}

// InferScope analyses whether text's subject is the user (global) or the
// project (project), as a second pass that can override the scope a
// category alone would imply. It returns ok=false when no clear winner
// exists, meaning the caller should keep the existing scope.
func InferScope(text string, projectName string) (model.Scope, bool) {
	userScore := 0
	projectScore := 0

	for _, p := range userSubjectPatterns {
		if p.MatchString(text) {
			userScore++
		}
	}
	for _, p := range projectSubjectPatterns {
		if p.MatchString(text) {
			projectScore++
		}
	}

	if len(projectName) >= 3 {
		namePat := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(projectName) + `\b`)
		if namePat.MatchString(text) {
			projectScore += 2
		}
	}

	if userScore > 0 && userScore > projectScore {
		return model.ScopeGlobal, true
	}
	if projectScore > 0 && projectScore > userScore {
		return model.ScopeProject, true
	}
	return "", false
}
