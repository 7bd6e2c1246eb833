// Package relevance scores, ranks, and time-decays memories. Grounded on
// original_source/relevance.py's RelevanceWeights/RelevanceEngine, ported to
// Go with a session-boost signal added for session-scoped recall (see
// SPEC_FULL.md's relevance section).
package relevance

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/mmesh/memorymesh/internal/embedding"
	"github.com/mmesh/memorymesh/internal/model"
)

// Weights controls each signal's contribution to the composite score. They
// need not sum to 1 — Engine normalises by their total.
type Weights struct {
	Semantic     float64
	Recency      float64
	Importance   float64
	Frequency    float64
	SessionBoost float64
}

// DefaultWeights mirrors original_source/relevance.py's RelevanceWeights
// defaults, with SessionBoost added as this module's session-awareness
// extension: a 25% multiplicative bump to the combined score when a
// candidate's session_id matches the recall's.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Recency: 0.2, Importance: 0.2, Frequency: 0.1, SessionBoost: 1.25}
}

func (w Weights) total() float64 {
	return w.Semantic + w.Recency + w.Importance + w.Frequency
}

// Engine scores, ranks, and decays memories.
type Engine struct {
	Weights        Weights
	MaxRecencyDays float64
	MaxAccessCount uint64
}

// New returns an Engine with the given weights and the defaults for
// max-recency-days (30) and max-access-count (100) from
// original_source/relevance.py.
func New(w Weights) *Engine {
	return &Engine{Weights: w, MaxRecencyDays: 30, MaxAccessCount: 100}
}

// Score computes a composite relevance score for m against an optional
// query embedding and the recall's session id, evaluated at now.
func (e *Engine) Score(m model.Memory, queryEmbedding embedding.Vector, sessionID string, now time.Time) float64 {
	total := e.Weights.total()
	if total == 0 {
		return 0
	}

	semScore := 0.0
	if len(queryEmbedding) > 0 && len(m.Embedding) == len(queryEmbedding) {
		raw := embedding.CosineSimilarity(queryEmbedding, m.Embedding)
		semScore = (raw + 1.0) / 2.0
	}

	maxRecencyDays := e.MaxRecencyDays
	if maxRecencyDays < 1 {
		maxRecencyDays = 1
	}
	daysSince := now.Sub(m.UpdatedAt).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	recencyScore := math.Exp(-daysSince / maxRecencyDays)

	importanceScore := m.Importance

	maxAccess := e.MaxAccessCount
	if maxAccess < 1 {
		maxAccess = 1
	}
	freqScore := math.Min(float64(m.AccessCount)/float64(maxAccess), 1.0)

	combined := (e.Weights.Semantic*semScore +
		e.Weights.Recency*recencyScore +
		e.Weights.Importance*importanceScore +
		e.Weights.Frequency*freqScore) / total

	if sessionID != "" && m.SessionID == sessionID && e.Weights.SessionBoost > 0 {
		combined *= e.Weights.SessionBoost
	}

	return combined
}

// ApplyDecay applies the exponential importance-decay formula to each
// memory in place: importance *= exp(-decay_rate * days_since_update),
// clamped to [0,1]. Memories with decay_rate == 0 are pinned and unaffected.
func (e *Engine) ApplyDecay(memories []model.Memory, now time.Time) {
	for i := range memories {
		m := &memories[i]
		if m.DecayRate <= 0 {
			continue
		}
		daysSince := now.Sub(m.UpdatedAt).Hours() / 24
		if daysSince <= 0 {
			continue
		}
		m.Importance = m.Importance * math.Exp(-m.DecayRate*daysSince)
		if m.Importance < 0 {
			m.Importance = 0
		}
		if m.Importance > 1 {
			m.Importance = 1
		}
	}
}

// Ranked pairs a memory with the score it was ranked by.
type Ranked struct {
	Memory model.Memory
	Score  float64
}

// Rank scores every candidate, discards those below minRelevance, and
// returns the top k sorted by score desc, then updated_at desc, then id
// ascending (the third tie-break this module adds over the two-level sort in
// original_source/relevance.py, to make ranking fully deterministic).
func (e *Engine) Rank(ctx context.Context, memories []model.Memory, queryEmbedding embedding.Vector, sessionID string, k int, minRelevance float64, now time.Time) []Ranked {
	scored := make([]Ranked, 0, len(memories))
	for _, m := range memories {
		s := e.Score(m, queryEmbedding, sessionID, now)
		if s >= minRelevance {
			scored = append(scored, Ranked{Memory: m, Score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Memory.UpdatedAt.Equal(scored[j].Memory.UpdatedAt) {
			return scored[i].Memory.UpdatedAt.After(scored[j].Memory.UpdatedAt)
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
