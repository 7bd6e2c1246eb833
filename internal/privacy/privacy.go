// Package privacy detects and redacts common secret shapes in memory text
// before it is persisted. Ported verbatim (pattern list and labels) from
// original_source/privacy.py.
package privacy

import "regexp"

type secretPattern struct {
	pattern *regexp.Regexp
	label   string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?:sk|pk)[-_][a-zA-Z0-9_-]{20,}`), "API key"},
	{regexp.MustCompile(`(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36,}`), "GitHub token"},
	{regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*\S+`), "password"},
	{regexp.MustCompile(`(?i)(?:secret|token|key)\s*[:=]\s*['"]?\S{8,}`), "secret/token"},
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC )?PRIVATE KEY-----`), "private key"},
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), "JWT token"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS access key"},
	{regexp.MustCompile(`xox[bpsar]-[A-Za-z0-9-]{10,}`), "Slack token"},
}

// Detect scans text and returns the distinct secret-type labels found, in
// pattern-table order. An empty result means no secrets were detected.
func Detect(text string) []string {
	found := []string{}
	seen := map[string]bool{}
	for _, sp := range secretPatterns {
		if !seen[sp.label] && sp.pattern.MatchString(text) {
			found = append(found, sp.label)
			seen[sp.label] = true
		}
	}
	return found
}

// Redact replaces every detected secret occurrence in text with
// "[REDACTED]".
func Redact(text string) string {
	result := text
	for _, sp := range secretPatterns {
		result = sp.pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}
