// Package compaction detects duplicate and near-duplicate memories and
// merges them to keep a store lean. Ported from
// original_source/compaction.py's jaccard/containment text similarity,
// embedding near-duplicate pass, primary-selection, and merge logic.
package compaction

import (
	"strings"

	"github.com/mmesh/memorymesh/internal/embedding"
	"github.com/mmesh/memorymesh/internal/model"
)

const (
	defaultTextThreshold      = 0.85
	defaultEmbeddingThreshold = 0.9
)

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

// JaccardSimilarity returns the word-set Jaccard index of a and b, in [0,1].
func JaccardSimilarity(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
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

// TextSimilarity is Jaccard similarity with a containment shortcut: if one
// text is a substring of the other (case-insensitive), similarity is 1.0.
func TextSimilarity(a, b string) float64 {
	aLower := strings.ToLower(strings.TrimSpace(a))
	bLower := strings.ToLower(strings.TrimSpace(b))
	if strings.Contains(bLower, aLower) || strings.Contains(aLower, bLower) {
		return 1.0
	}
	return JaccardSimilarity(a, b)
}

// Pair is a (primary, secondary) match: primary is kept, secondary is a
// candidate for deletion after merging into primary.
type Pair struct {
	Primary   model.Memory
	Secondary model.Memory
}

// PickPrimary chooses which memory to keep: higher importance wins, ties
// broken by higher access_count, then more recent updated_at.
func PickPrimary(a, b model.Memory) (primary, secondary model.Memory) {
	if a.Importance > b.Importance {
		return a, b
	}
	if b.Importance > a.Importance {
		return b, a
	}
	if a.AccessCount > b.AccessCount {
		return a, b
	}
	if b.AccessCount > a.AccessCount {
		return b, a
	}
	if !a.UpdatedAt.Before(b.UpdatedAt) {
		return a, b
	}
	return b, a
}

// FindDuplicates scans memories for pairs whose TextSimilarity meets
// threshold (0 uses the default 0.85). Each memory participates in at most
// one pair as a secondary — once chosen as a secondary it is no longer
// considered for further pairing.
func FindDuplicates(memories []model.Memory, threshold float64) []Pair {
	if threshold <= 0 {
		threshold = defaultTextThreshold
	}
	var pairs []Pair
	seenSecondary := map[string]bool{}

	for i := 0; i < len(memories); i++ {
		if seenSecondary[memories[i].ID] {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			if seenSecondary[memories[j].ID] {
				continue
			}
			sim := TextSimilarity(memories[i].Text, memories[j].Text)
			if sim >= threshold {
				primary, secondary := PickPrimary(memories[i], memories[j])
				pairs = append(pairs, Pair{Primary: primary, Secondary: secondary})
				seenSecondary[secondary.ID] = true
			}
		}
	}
	return pairs
}

// FindNearDuplicates scans memories that already carry an embedding for
// pairs whose cosine similarity meets threshold (0 uses the default 0.9).
// Memories without an embedding are skipped — unlike the ported original,
// this port has no on-the-fly embedding callback, since compaction never
// has a live Embedder in scope (see DESIGN.md).
func FindNearDuplicates(memories []model.Memory, threshold float64) []Pair {
	if threshold <= 0 {
		threshold = defaultEmbeddingThreshold
	}

	var embedded []model.Memory
	for _, m := range memories {
		if len(m.Embedding) > 0 {
			embedded = append(embedded, m)
		}
	}

	var pairs []Pair
	seenSecondary := map[string]bool{}

	for i := 0; i < len(embedded); i++ {
		if seenSecondary[embedded[i].ID] {
			continue
		}
		for j := i + 1; j < len(embedded); j++ {
			if seenSecondary[embedded[j].ID] {
				continue
			}
			sim := embedding.CosineSimilarity(embedded[i].Embedding, embedded[j].Embedding)
			if sim >= threshold {
				primary, secondary := PickPrimary(embedded[i], embedded[j])
				pairs = append(pairs, Pair{Primary: primary, Secondary: secondary})
				seenSecondary[secondary.ID] = true
			}
		}
	}
	return pairs
}

// Merge combines secondary into primary, keeping primary's id and scope.
// Text is kept as primary's unless the two differ substantially (Jaccard
// below 0.95), in which case secondary's text is appended after a
// separator. Metadata keys from both are unioned with primary taking
// precedence on conflicts. created_at is the earlier of the two,
// updated_at the later, importance the max, decay_rate the min (the more
// conservative, slower-fading rate survives), and access counts sum.
func Merge(primary, secondary model.Memory) model.Memory {
	mergedText := primary.Text
	if JaccardSimilarity(primary.Text, secondary.Text) < 0.95 {
		mergedText = strings.TrimRight(primary.Text, " \t\n") + "\n---\n" + strings.TrimLeft(secondary.Text, " \t\n")
	}

	mergedMetadata := map[string]any{}
	for k, v := range secondary.Metadata {
		mergedMetadata[k] = v
	}
	for k, v := range primary.Metadata {
		mergedMetadata[k] = v
	}

	createdAt := primary.CreatedAt
	if secondary.CreatedAt.Before(createdAt) {
		createdAt = secondary.CreatedAt
	}
	updatedAt := primary.UpdatedAt
	if secondary.UpdatedAt.After(updatedAt) {
		updatedAt = secondary.UpdatedAt
	}
	importance := primary.Importance
	if secondary.Importance > importance {
		importance = secondary.Importance
	}
	decayRate := primary.DecayRate
	if secondary.DecayRate < decayRate {
		decayRate = secondary.DecayRate
	}

	return model.Memory{
		ID:          primary.ID,
		Text:        mergedText,
		Metadata:    mergedMetadata,
		Embedding:   primary.Embedding,
		SessionID:   primary.SessionID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		AccessCount: primary.AccessCount + secondary.AccessCount,
		Importance:  importance,
		DecayRate:   decayRate,
		Scope:       primary.Scope,
	}
}

// Plan is one planned or executed merge.
type Plan struct {
	PrimaryID         string
	SecondaryID       string
	Similarity        float64
	Merged            model.Memory
	MergedTextPreview string
}

// Compute runs duplicate and near-duplicate detection over memories and
// returns the resulting merge plan, without mutating any store. Callers
// apply the plan (or discard it for a dry run).
func Compute(memories []model.Memory, threshold float64) []Plan {
	if len(memories) < 2 {
		return nil
	}

	pairs := FindDuplicates(memories, threshold)

	alreadyPaired := map[string]bool{}
	for _, p := range pairs {
		alreadyPaired[p.Primary.ID] = true
		alreadyPaired[p.Secondary.ID] = true
	}

	var unpaired []model.Memory
	for _, m := range memories {
		if !alreadyPaired[m.ID] {
			unpaired = append(unpaired, m)
		}
	}
	if len(unpaired) >= 2 {
		pairs = append(pairs, FindNearDuplicates(unpaired, 0)...)
	}

	plans := make([]Plan, 0, len(pairs))
	for _, p := range pairs {
		merged := Merge(p.Primary, p.Secondary)
		preview := merged.Text
		if len(preview) > 100 {
			preview = preview[:100]
		}
		plans = append(plans, Plan{
			PrimaryID:         p.Primary.ID,
			SecondaryID:       p.Secondary.ID,
			Similarity:        TextSimilarity(p.Primary.Text, p.Secondary.Text),
			Merged:            merged,
			MergedTextPreview: preview,
		})
	}
	return plans
}
