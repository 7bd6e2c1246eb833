package category

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmesh/memorymesh/internal/model"
)

func TestAutoCategorizeGuardrail(t *testing.T) {
	require.Equal(t, model.CategoryGuardrail, AutoCategorize("never commit secrets to the repo", nil))
}

func TestAutoCategorizeMistake(t *testing.T) {
	require.Equal(t, model.CategoryMistake, AutoCategorize("I forgot to run migrations and broke staging", nil))
}

func TestAutoCategorizePersonality(t *testing.T) {
	require.Equal(t, model.CategoryPersonality, AutoCategorize("I am a senior backend engineer", nil))
}

func TestAutoCategorizePreference(t *testing.T) {
	require.Equal(t, model.CategoryPreference, AutoCategorize("I prefer tabs over spaces", nil))
}

func TestAutoCategorizeQuestion(t *testing.T) {
	require.Equal(t, model.CategoryQuestion, AutoCategorize("why does this fail intermittently?", nil))
}

func TestAutoCategorizeDecision(t *testing.T) {
	require.Equal(t, model.CategoryDecision, AutoCategorize("we decided to use postgres for this service", nil))
}

func TestAutoCategorizePattern(t *testing.T) {
	require.Equal(t, model.CategoryPattern, AutoCategorize("the convention here is to prefix test files with test_", nil))
}

func TestAutoCategorizeSessionSummary(t *testing.T) {
	require.Equal(t, model.CategorySessionSummary, AutoCategorize("session summary: refactored the auth module", nil))
}

func TestAutoCategorizeFallsBackToContext(t *testing.T) {
	require.Equal(t, model.CategoryContext, AutoCategorize("the server listens on port 8080", nil))
}

func TestAutoCategorizeMetadataHintTakesPrecedence(t *testing.T) {
	got := AutoCategorize("never do this", map[string]any{"category": "decision"})
	require.Equal(t, model.CategoryDecision, got)
}

func TestAutoCategorizeInvalidMetadataHintIgnored(t *testing.T) {
	got := AutoCategorize("never do this", map[string]any{"category": "not-a-real-category"})
	require.Equal(t, model.CategoryGuardrail, got)
}

func TestAutoCategorizeOrderingGuardrailBeatsPreference(t *testing.T) {
	// "never" triggers guardrail; "prefer" triggers preference; guardrail
	// is earlier in the pattern table so it should win.
	got := AutoCategorize("never prefer tabs over spaces", nil)
	require.Equal(t, model.CategoryGuardrail, got)
}

func TestInferScopeUserSubject(t *testing.T) {
	scope, ok := InferScope("the user prefers dark mode across all projects", "")
	require.True(t, ok)
	require.Equal(t, model.ScopeGlobal, scope)
}

func TestInferScopeProjectSubject(t *testing.T) {
	scope, ok := InferScope("fixed a bug in src/auth/login.py, tests pass now", "")
	require.True(t, ok)
	require.Equal(t, model.ScopeProject, scope)
}

func TestInferScopeNoSignalReturnsNotOK(t *testing.T) {
	_, ok := InferScope("the sky is blue today", "")
	require.False(t, ok)
}

func TestInferScopeProjectNameIsStrongSignal(t *testing.T) {
	scope, ok := InferScope("memorymesh needs a new index", "memorymesh")
	require.True(t, ok)
	require.Equal(t, model.ScopeProject, scope)
}

func TestInferScopeShortProjectNameIgnored(t *testing.T) {
	// Project names under 3 characters are not used as a signal.
	_, ok := InferScope("go needs a new index today maybe", "go")
	require.False(t, ok)
}

func TestInferScopeTieReturnsNotOK(t *testing.T) {
	// One user signal, one project signal: no clear winner, keep existing scope.
	_, ok := InferScope("the user prefers go.mod conventions", "")
	require.False(t, ok)
}
