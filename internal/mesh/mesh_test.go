package mesh

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmesh/memorymesh/internal/model"
)

func newTestMesh(t *testing.T) *Mesh {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		ProjectPath: filepath.Join(dir, "project.db"),
		GlobalPath:  filepath.Join(dir, "global.db"),
	}
	m, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func newGlobalOnlyMesh(t *testing.T) *Mesh {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{GlobalPath: filepath.Join(dir, "global.db")}
	m, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRememberAndRecallRoundTrip(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	id, err := m.Remember(ctx, "the build pipeline uses buildkit for caching", RememberParams{Scope: &scope})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := m.Recall(ctx, RecallParams{Query: "buildkit caching", Scope: &scope})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].ID)
	require.Equal(t, uint64(1), results[0].AccessCount)
}

func TestRememberWithoutProjectStoreRequiresExplicitGlobalScope(t *testing.T) {
	m := newGlobalOnlyMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	_, err := m.Remember(ctx, "some project-only fact", RememberParams{Scope: &scope})
	require.Error(t, err)

	global := model.ScopeGlobal
	id, err := m.Remember(ctx, "the user prefers tabs over spaces", RememberParams{Scope: &global})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestRememberAutoCategorizeRoutesToGlobalScope(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, "never delete production backups without a second approval", RememberParams{AutoCategorize: true})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mm, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.ScopeGlobal, mm.Scope)
	require.Equal(t, "guardrail", mm.Metadata["category"])
}

func TestRememberPinSetsMaxImportanceAndZeroDecay(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	id, err := m.Remember(ctx, "pinned fact about the release cadence", RememberParams{Scope: &scope, Pin: true})
	require.NoError(t, err)

	mm, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1.0, mm.Importance)
	require.Equal(t, 0.0, mm.DecayRate)
	require.Equal(t, true, mm.Metadata["pinned"])
}

func TestRememberFlagsPotentialSecrets(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	id, err := m.Remember(ctx, "the api key is sk-ABCDEFGHIJKLMNOPQRSTUVWX1234", RememberParams{Scope: &scope})
	require.NoError(t, err)

	mm, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, true, mm.Metadata["has_secrets_warning"])
}

func TestRememberSkipOnConflictReturnsEmptyID(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	_, err := m.Remember(ctx, "the user prefers dark mode in every editor they touch", RememberParams{Scope: &scope})
	require.NoError(t, err)

	id, err := m.Remember(ctx, "the user prefers dark mode in every editor they touch", RememberParams{Scope: &scope, OnConflict: "skip"})
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestForgetRemovesMemoryFromEitherStore(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	id, err := m.Remember(ctx, "the service boots on port 8080", RememberParams{Scope: &scope})
	require.NoError(t, err)

	ok, err := m.Forget(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Get(ctx, id)
	require.Error(t, err)
}

func TestForgetAllRequiresExplicitScope(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	_, err := m.Remember(ctx, "memory one", RememberParams{Scope: &scope})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "memory two", RememberParams{Scope: &scope})
	require.NoError(t, err)

	n, err := m.ForgetAll(ctx, model.ScopeProject)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	count, err := m.Count(ctx, &scope)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestListMergesBothStoresSortedByUpdatedAt(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	global := model.ScopeGlobal
	_, err := m.Remember(ctx, "project memory", RememberParams{Scope: &project})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "global memory", RememberParams{Scope: &global})
	require.NoError(t, err)

	results, err := m.List(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestCountAcrossBothStores(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	global := model.ScopeGlobal
	_, err := m.Remember(ctx, "project memory", RememberParams{Scope: &project})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "global memory", RememberParams{Scope: &global})
	require.NoError(t, err)

	total, err := m.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestUpdateInPlaceChangesText(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	id, err := m.Remember(ctx, "the original wording", RememberParams{Scope: &scope})
	require.NoError(t, err)

	newText := "the revised wording"
	updated, err := m.Update(ctx, id, UpdateParams{Text: &newText})
	require.NoError(t, err)
	require.Equal(t, newText, updated.Text)
	require.Equal(t, model.ScopeGlobal, updated.Scope)
}

func TestUpdateScopeMigratesBetweenStores(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	id, err := m.Remember(ctx, "a fact that belongs in the global store", RememberParams{Scope: &project})
	require.NoError(t, err)

	global := model.ScopeGlobal
	updated, err := m.Update(ctx, id, UpdateParams{Scope: &global})
	require.NoError(t, err)
	require.Equal(t, model.ScopeGlobal, updated.Scope)
	require.NotEqual(t, id, updated.ID)

	_, err = m.projectStore.Get(ctx, id)
	require.Error(t, err)
}

func TestGetSessionReturnsOnlyMatchingSession(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	_, err := m.Remember(ctx, "message one", RememberParams{Scope: &scope, SessionID: "sess-a"})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "message two", RememberParams{Scope: &scope, SessionID: "sess-a"})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "message three", RememberParams{Scope: &scope, SessionID: "sess-b"})
	require.NoError(t, err)

	got, err := m.GetSession(ctx, "sess-a", &scope)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestListSessionsOrdersMostRecentFirst(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeProject
	_, err := m.Remember(ctx, "first session message", RememberParams{Scope: &scope, SessionID: "sess-old"})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "second session message", RememberParams{Scope: &scope, SessionID: "sess-new"})
	require.NoError(t, err)

	summaries, err := m.ListSessions(ctx, &scope, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "sess-new", summaries[0].SessionID)
}

func TestSessionStartBucketsByCategory(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	_, err := m.Remember(ctx, "never push directly to main", RememberParams{AutoCategorize: true})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "I made a mistake deploying on a Friday", RememberParams{AutoCategorize: true})
	require.NoError(t, err)

	result, err := m.SessionStart(ctx, "")
	require.NoError(t, err)
	require.Contains(t, result.Guardrails, "never push directly to main")
	require.Contains(t, result.CommonMistakes, "I made a mistake deploying on a Friday")
}

func TestCompactMergesDuplicateMemories(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	_, err := m.Remember(ctx, "the deployment happens every day at noon UTC", RememberParams{Scope: &scope})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "the deployment happens every day at noon UTC", RememberParams{Scope: &scope, OnConflict: "keep_both"})
	require.NoError(t, err)

	result, err := m.Compact(ctx, model.ScopeGlobal, 0.85, false)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.MergedCount, 1)

	count, err := m.Count(ctx, &scope)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCompactDryRunDoesNotMutateStore(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	scope := model.ScopeGlobal
	_, err := m.Remember(ctx, "repeat this exact sentence for deduplication testing", RememberParams{Scope: &scope})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "repeat this exact sentence for deduplication testing", RememberParams{Scope: &scope, OnConflict: "keep_both"})
	require.NoError(t, err)

	_, err = m.Compact(ctx, model.ScopeGlobal, 0.85, true)
	require.NoError(t, err)

	count, err := m.Count(ctx, &scope)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestGetTimeRangeAcrossBothStores(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	_, err := m.Remember(ctx, "a timestamped project fact", RememberParams{Scope: &project})
	require.NoError(t, err)

	_, _, ok, err := m.GetTimeRange(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRememberDefaultsToProjectScopeWhenProjectStoreConfigured(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, "an unremarkable note with no scope signal", RememberParams{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mem, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.ScopeProject, mem.Scope)
}

func TestRememberDefaultsToGlobalScopeWithoutProjectStore(t *testing.T) {
	m := newGlobalOnlyMesh(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, "an unremarkable note with no scope signal", RememberParams{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mem, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.ScopeGlobal, mem.Scope)
}

func TestRecallWithZeroLimitReturnsEmptyWithoutTouchingAccessCounts(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, "the deployment pipeline uses blue-green releases", RememberParams{})
	require.NoError(t, err)

	before, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), before.AccessCount)

	zero := 0
	results, err := m.Recall(ctx, RecallParams{Query: "deployment pipeline", Limit: &zero})
	require.NoError(t, err)
	require.Empty(t, results)

	after, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), after.AccessCount)
}

func TestRecallWithMetadataFilterNarrowsResults(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	_, err := m.Remember(ctx, "the team standup is at 9am", RememberParams{
		Scope: &project, Metadata: map[string]any{"topic": "standup"},
	})
	require.NoError(t, err)
	_, err = m.Remember(ctx, "the team retro is on Fridays", RememberParams{
		Scope: &project, Metadata: map[string]any{"topic": "retro"},
	})
	require.NoError(t, err)

	results, err := m.Recall(ctx, RecallParams{
		Scope:          &project,
		MetadataFilter: map[string]any{"topic": "standup"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "standup", results[0].Metadata["topic"])
}

func TestRecallWithInvalidMetadataFilterKeyFailsBeforeQuerying(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	_, err := m.Remember(ctx, "a project fact", RememberParams{Scope: &project})
	require.NoError(t, err)

	_, err = m.Recall(ctx, RecallParams{
		Scope:          &project,
		MetadataFilter: map[string]any{"bad key!": "x"},
	})
	require.Error(t, err)
}

func TestRememberFlagsHasContradictionOnKeepBoth(t *testing.T) {
	m := newTestMesh(t)
	ctx := context.Background()

	project := model.ScopeProject
	_, err := m.Remember(ctx, "the API rate limit is 100 requests per minute", RememberParams{Scope: &project})
	require.NoError(t, err)

	id2, err := m.Remember(ctx, "the API rate limit is 500 requests per minute", RememberParams{Scope: &project})
	require.NoError(t, err)
	require.NotEmpty(t, id2)

	mem2, err := m.Get(ctx, id2)
	require.NoError(t, err)
	require.Equal(t, true, mem2.Metadata["has_contradiction"])
	require.NotEmpty(t, mem2.Metadata["contradicts"])
}
