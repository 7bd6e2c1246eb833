package mesh

import (
	"context"
	"log/slog"

	"github.com/mmesh/memorymesh/internal/compaction"
	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/store"
)

// CompactionResult summarises one compaction pass.
type CompactionResult struct {
	MergedCount int
	Plans       []compaction.Plan
}

// Compact scans scope for duplicate and near-duplicate memories and merges
// each pair found, keeping the primary's id. threshold (0 uses
// compaction.Compute's default of 0.85) controls the text-similarity
// match; dryRun computes the plan without deleting or updating anything.
func (m *Mesh) Compact(ctx context.Context, scope model.Scope, threshold float64, dryRun bool) (CompactionResult, error) {
	target, err := m.storeForScope(scope, false)
	if err != nil {
		return CompactionResult{}, err
	}

	all, err := target.ScanWithEmbeddings(ctx, 100_000)
	if err != nil {
		return CompactionResult{}, err
	}
	// ScanWithEmbeddings only returns rows that carry an embedding;
	// duplicate detection also needs text-only rows, so merge in the rest.
	textOnly, err := target.List(ctx, 100_000, 0)
	if err != nil {
		return CompactionResult{}, err
	}
	seen := map[string]bool{}
	memories := make([]model.Memory, 0, len(all)+len(textOnly))
	for _, mm := range all {
		seen[mm.ID] = true
		memories = append(memories, mm)
	}
	for _, mm := range textOnly {
		if !seen[mm.ID] {
			memories = append(memories, mm)
		}
	}

	plans := compaction.Compute(memories, threshold)
	if dryRun || len(plans) == 0 {
		return CompactionResult{MergedCount: len(plans), Plans: plans}, nil
	}

	applied := 0
	for _, plan := range plans {
		update := fieldUpdateFromMerge(plan.Merged)
		if err := target.UpdateFields(ctx, plan.PrimaryID, update); err != nil {
			m.logger.Warn("compaction merge failed, skipping pair",
				slog.String("primary", plan.PrimaryID), slog.String("secondary", plan.SecondaryID),
				slog.String("cause", err.Error()))
			continue
		}
		if _, err := target.Delete(ctx, plan.SecondaryID); err != nil {
			m.logger.Warn("compaction could not delete merged secondary",
				slog.String("secondary", plan.SecondaryID), slog.String("cause", err.Error()))
			continue
		}
		applied++
	}

	return CompactionResult{MergedCount: applied, Plans: plans}, nil
}

// fieldUpdateFromMerge converts a computed merge into the subset of fields
// UpdateFields needs to apply it to the primary row in place.
func fieldUpdateFromMerge(merged model.Memory) store.FieldUpdate {
	text := merged.Text
	importance := merged.Importance
	decayRate := merged.DecayRate
	metadata := merged.Metadata
	updatedAt := merged.UpdatedAt
	embedding := merged.Embedding
	embeddingPtr := &embedding

	return store.FieldUpdate{
		Text:       &text,
		Importance: &importance,
		DecayRate:  &decayRate,
		Metadata:   &metadata,
		Embedding:  &embeddingPtr,
		UpdatedAt:  &updatedAt,
	}
}
