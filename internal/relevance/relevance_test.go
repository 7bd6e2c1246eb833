package relevance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmesh/memorymesh/internal/embedding"
	"github.com/mmesh/memorymesh/internal/model"
)

func TestScorePureRecencyAndImportance(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	m := model.Memory{UpdatedAt: now, Importance: 1.0, AccessCount: 0}
	s := e.Score(m, nil, "", now)
	require.Greater(t, s, 0.0)
	require.LessOrEqual(t, s, 1.0+1e-9)
}

func TestScoreDecaysWithAge(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	fresh := model.Memory{UpdatedAt: now, Importance: 0.5}
	old := model.Memory{UpdatedAt: now.AddDate(0, 0, -60), Importance: 0.5}

	require.Greater(t, e.Score(fresh, nil, "", now), e.Score(old, nil, "", now))
}

func TestScoreSemanticComponent(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	vec := embedding.Vector{1, 0, 0}
	matching := model.Memory{UpdatedAt: now, Embedding: embedding.Vector{1, 0, 0}}
	orthogonal := model.Memory{UpdatedAt: now, Embedding: embedding.Vector{0, 1, 0}}

	require.Greater(t, e.Score(matching, vec, "", now), e.Score(orthogonal, vec, "", now))
}

func TestScoreMismatchedEmbeddingDimensionIgnoresSemantic(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	m := model.Memory{UpdatedAt: now, Embedding: embedding.Vector{1, 0}}
	query := embedding.Vector{1, 0, 0}
	// Should not panic and should just omit the semantic term.
	_ = e.Score(m, query, "", now)
}

func TestScoreSessionBoostIncreasesScore(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	m := model.Memory{UpdatedAt: now, Importance: 0.5, SessionID: "sess-1"}

	withoutBoost := e.Score(m, nil, "other-session", now)
	withBoost := e.Score(m, nil, "sess-1", now)
	require.Greater(t, withBoost, withoutBoost)
}

func TestScoreZeroWeightsReturnsZero(t *testing.T) {
	e := New(Weights{})
	now := time.Now().UTC()
	require.Equal(t, 0.0, e.Score(model.Memory{UpdatedAt: now, Importance: 1}, nil, "", now))
}

func TestApplyDecayPinnedMemoryUnaffected(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{Importance: 0.8, DecayRate: 0, UpdatedAt: now.AddDate(0, -1, 0)},
	}
	e.ApplyDecay(memories, now)
	require.Equal(t, 0.8, memories[0].Importance)
}

func TestApplyDecayReducesImportanceOverTime(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{Importance: 0.8, DecayRate: 0.1, UpdatedAt: now.AddDate(0, 0, -30)},
	}
	e.ApplyDecay(memories, now)
	require.Less(t, memories[0].Importance, 0.8)
	require.GreaterOrEqual(t, memories[0].Importance, 0.0)
}

func TestApplyDecayClampsToZero(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{Importance: 0.01, DecayRate: 100, UpdatedAt: now.AddDate(-5, 0, 0)},
	}
	e.ApplyDecay(memories, now)
	require.GreaterOrEqual(t, memories[0].Importance, 0.0)
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{ID: "a", Importance: 0.1, UpdatedAt: now.AddDate(0, 0, -10)},
		{ID: "b", Importance: 0.9, UpdatedAt: now},
	}
	ranked := e.Rank(context.Background(), memories, nil, "", 10, 0, now)
	require.Len(t, ranked, 2)
	require.Equal(t, "b", ranked[0].Memory.ID)
}

func TestRankTruncatesToK(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{ID: "a", Importance: 0.9, UpdatedAt: now},
		{ID: "b", Importance: 0.8, UpdatedAt: now},
		{ID: "c", Importance: 0.7, UpdatedAt: now},
	}
	ranked := e.Rank(context.Background(), memories, nil, "", 2, 0, now)
	require.Len(t, ranked, 2)
}

func TestRankFiltersByMinRelevance(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{ID: "a", Importance: 0.0, UpdatedAt: now.AddDate(-10, 0, 0), AccessCount: 0},
	}
	ranked := e.Rank(context.Background(), memories, nil, "", 10, 0.999, now)
	require.Empty(t, ranked)
}

func TestRankTieBreaksByIDWhenScoreAndUpdatedAtEqual(t *testing.T) {
	e := New(DefaultWeights())
	now := time.Now().UTC()
	memories := []model.Memory{
		{ID: "zzz", Importance: 0.5, UpdatedAt: now},
		{ID: "aaa", Importance: 0.5, UpdatedAt: now},
	}
	ranked := e.Rank(context.Background(), memories, nil, "", 10, 0, now)
	require.Equal(t, "aaa", ranked[0].Memory.ID)
	require.Equal(t, "zzz", ranked[1].Memory.ID)
}
