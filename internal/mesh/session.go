package mesh

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/store"
)

// GetSession returns every memory tagged with sessionID, ordered oldest
// first, searching scope (or both stores when scope is nil).
func (m *Mesh) GetSession(ctx context.Context, sessionID string, scope *model.Scope) ([]model.Memory, error) {
	targets, err := m.targetsForScope(scope)
	if err != nil {
		return nil, err
	}

	var out []model.Memory
	for _, target := range targets {
		got, err := target.GetBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListSessions returns a summary of every distinct session recorded in
// scope (or both stores merged, most recent first, when scope is nil).
func (m *Mesh) ListSessions(ctx context.Context, scope *model.Scope, limit int) ([]store.SessionSummary, error) {
	targets, err := m.targetsForScope(scope)
	if err != nil {
		return nil, err
	}

	var all []store.SessionSummary
	for _, target := range targets {
		got, err := target.ListSessions(ctx, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, got...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].LastAt.After(all[j].LastAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

const sessionStartBucketSize = 500
const sessionStartMaxPerCategory = 5

// SessionStartResult is the structured context an AI agent should be given
// at the start of a new session, bucketed from recent high-importance
// memories across both stores.
type SessionStartResult struct {
	UserProfile     []string
	Guardrails      []string
	CommonMistakes  []string
	CommonQuestions []string
	ProjectContext  []string
	LastSession     []string
}

// SessionStart assembles SessionStartResult from per-category buckets
// (personality/preference/guardrail/mistake/question from the global store;
// context/decision/pattern/session_summary from the project store), each
// capped at 5 entries sorted by importance descending. When projectContext
// is non-empty and a project store is configured, it is also used as a
// Recall query to supplement ProjectContext, mirroring
// original_source/core.py's session_start.
func (m *Mesh) SessionStart(ctx context.Context, projectContext string) (SessionStartResult, error) {
	globalByCat, err := m.collectByCategory(ctx, m.globalStore, []model.Category{
		model.CategoryPersonality, model.CategoryPreference, model.CategoryGuardrail,
		model.CategoryMistake, model.CategoryQuestion,
	})
	if err != nil {
		return SessionStartResult{}, err
	}

	projectByCat := map[model.Category][]model.Memory{}
	if m.projectStore != nil {
		projectByCat, err = m.collectByCategory(ctx, m.projectStore, []model.Category{
			model.CategoryContext, model.CategoryDecision, model.CategoryPattern, model.CategorySessionSummary,
		})
		if err != nil {
			return SessionStartResult{}, err
		}
	}

	result := SessionStartResult{
		Guardrails:      texts(globalByCat[model.CategoryGuardrail]),
		CommonMistakes:  texts(globalByCat[model.CategoryMistake]),
		CommonQuestions: texts(globalByCat[model.CategoryQuestion]),
	}

	profile := append(texts(globalByCat[model.CategoryPersonality]), texts(globalByCat[model.CategoryPreference])...)
	result.UserProfile = capStrings(profile, sessionStartMaxPerCategory)

	if summaries := projectByCat[model.CategorySessionSummary]; len(summaries) > 0 {
		result.LastSession = texts(summaries[:1])
	}

	projCtx := texts(projectByCat[model.CategoryContext])
	projCtx = append(projCtx, texts(projectByCat[model.CategoryDecision])...)
	projCtx = append(projCtx, texts(projectByCat[model.CategoryPattern])...)
	result.ProjectContext = capStrings(projCtx, sessionStartMaxPerCategory)

	if projectContext != "" && m.projectStore != nil {
		scope := model.ScopeProject
		limit := sessionStartMaxPerCategory
		recalled, err := m.Recall(ctx, RecallParams{Query: projectContext, Scope: &scope, Limit: &limit})
		if err != nil {
			m.logger.Warn("session_start project_context recall failed", slog.String("cause", err.Error()))
		} else {
			seen := map[string]bool{}
			for _, t := range result.ProjectContext {
				seen[t] = true
			}
			for _, mem := range recalled {
				if !seen[mem.Text] {
					result.ProjectContext = append(result.ProjectContext, mem.Text)
					seen[mem.Text] = true
				}
			}
			result.ProjectContext = capStrings(result.ProjectContext, sessionStartMaxPerCategory*2)
		}
	}

	m.logger.Info("session_start",
		slog.Int("profile", len(result.UserProfile)),
		slog.Int("guardrails", len(result.Guardrails)),
		slog.Int("mistakes", len(result.CommonMistakes)),
		slog.Int("questions", len(result.CommonQuestions)),
		slog.Int("project", len(result.ProjectContext)),
		slog.Int("session", len(result.LastSession)))

	return result, nil
}

// collectByCategory buckets a store's most recent 500 memories by their
// "category" metadata tag, keeping only the categories requested and
// sorting each bucket by importance descending.
func (m *Mesh) collectByCategory(ctx context.Context, target store.Store, categories []model.Category) (map[model.Category][]model.Memory, error) {
	wanted := map[model.Category]bool{}
	for _, c := range categories {
		wanted[c] = true
	}

	all, err := target.List(ctx, sessionStartBucketSize, 0)
	if err != nil {
		return nil, err
	}

	buckets := map[model.Category][]model.Memory{}
	for _, mem := range all {
		raw, ok := mem.Metadata["category"]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		cat := model.Category(s)
		if !wanted[cat] {
			continue
		}
		buckets[cat] = append(buckets[cat], mem)
	}

	for cat, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Importance > bucket[j].Importance })
		if len(bucket) > sessionStartMaxPerCategory {
			bucket = bucket[:sessionStartMaxPerCategory]
		}
		buckets[cat] = bucket
	}

	return buckets, nil
}

func texts(memories []model.Memory) []string {
	out := make([]string, len(memories))
	for i, mm := range memories {
		out[i] = mm.Text
	}
	return out
}

func capStrings(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
