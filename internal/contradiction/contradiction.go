// Package contradiction flags existing memories that may conflict with a
// new one, using embedding similarity when available and falling back to
// keyword overlap otherwise. Ported from original_source/contradiction.py.
package contradiction

import (
	"context"
	"sort"
	"strings"

	"github.com/mmesh/memorymesh/internal/embedding"
	"github.com/mmesh/memorymesh/internal/model"
)

// ConflictMode selects how a caller handles a detected contradiction.
type ConflictMode string

const (
	// ConflictKeepBoth stores the new memory alongside existing ones,
	// flagging the contradiction in metadata. The default.
	ConflictKeepBoth ConflictMode = "keep_both"
	// ConflictUpdate replaces the most similar existing memory with the
	// new text.
	ConflictUpdate ConflictMode = "update"
	// ConflictSkip does not store the new memory if a contradiction is found.
	ConflictSkip ConflictMode = "skip"
)

// Candidate pairs an existing memory with its similarity to the new text.
type Candidate struct {
	Memory     model.Memory
	Similarity float64
}

// Source is the narrow read-path a caller needs to supply candidates for
// contradiction checking — satisfied by store.Store's ScanWithEmbeddings and
// SearchByText without this package depending on the store package.
type Source interface {
	ScanWithEmbeddings(ctx context.Context, limit int) ([]model.Memory, error)
	SearchByText(ctx context.Context, substring string, limit int) ([]model.Memory, error)
}

const defaultThreshold = 0.75
const defaultMaxCandidates = 5

// Find locates existing memories that may contradict text/vec, trying
// embedding similarity first and falling back to keyword overlap when no
// embedding is available. Results are sorted by similarity descending and
// capped at maxCandidates (0 uses the default of 5).
func Find(ctx context.Context, text string, vec embedding.Vector, src Source, threshold float64, maxCandidates int) ([]Candidate, error) {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}

	var candidates []Candidate

	if len(vec) > 0 {
		all, err := src.ScanWithEmbeddings(ctx, 10_000)
		if err != nil {
			return nil, err
		}
		for _, m := range all {
			if len(m.Embedding) == 0 {
				continue
			}
			sim := embedding.CosineSimilarity(vec, m.Embedding)
			if sim >= threshold {
				candidates = append(candidates, Candidate{Memory: m, Similarity: sim})
			}
		}
	} else {
		words := strings.Fields(text)
		if len(words) > 10 {
			words = words[:10]
		}
		if len(words) > 0 {
			queryWords := words
			if len(queryWords) > 5 {
				queryWords = queryWords[:5]
			}
			hits, err := src.SearchByText(ctx, strings.Join(queryWords, " "), maxCandidates*2)
			if err != nil {
				return nil, err
			}
			for _, m := range hits {
				sim := wordOverlap(text, m.Text)
				if sim >= threshold {
					candidates = append(candidates, Candidate{Memory: m, Similarity: sim})
				}
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates, nil
}

// wordOverlap computes word-level Jaccard similarity between two texts.
func wordOverlap(a, b string) float64 {
	setA := toWordSet(a)
	setB := toWordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toWordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
