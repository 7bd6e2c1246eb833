package mesh

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/store"
)

// RecallParams holds recall()'s optional arguments. The zero value recalls
// across both stores (when a project store is configured), unfiltered,
// returning the top 5 results.
type RecallParams struct {
	Query          string
	Scope          *model.Scope // nil -> search both project and global
	Category       *model.Category
	MinImportance  *float64
	TimeRange      *store.TimeRange
	MetadataFilter map[string]any // keys validated against model.MetadataKeyPattern before any query runs
	Limit          *int           // nil -> 5; explicit 0 returns an empty result without querying either store
	MinRelevance   float64        // 0 -> no floor
	SessionID      string         // boosts same-session memories
}

const defaultRecallLimit = 5

// Recall ranks memories by relevance to Query and returns the top Limit
// results, updating each returned memory's access count. It mirrors
// original_source/core.py's recall(): gather candidates per scope, decay,
// score, rank, then bump access counts on what's actually returned.
func (m *Mesh) Recall(ctx context.Context, p RecallParams) ([]model.Memory, error) {
	limit := defaultRecallLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	if limit <= 0 {
		return nil, nil
	}

	targets, err := m.targetsForScope(p.Scope)
	if err != nil {
		return nil, err
	}

	hasFilter := p.Category != nil || p.MinImportance != nil || p.TimeRange != nil || p.MetadataFilter != nil

	var queryVec []float32
	if p.Query != "" {
		queryVec = m.safeEmbed(ctx, p.Query)
	}

	var candidates []model.Memory
	owner := map[string]store.Store{}
	for _, target := range targets {
		var got []model.Memory
		if hasFilter {
			got, err = target.SearchFiltered(ctx, store.Filter{
				Category:       p.Category,
				MinImportance:  p.MinImportance,
				TimeRange:      p.TimeRange,
				MetadataFilter: p.MetadataFilter,
			}, 0)
		} else {
			got, err = m.gatherCandidates(ctx, target, p.Query, queryVec)
		}
		if err != nil {
			return nil, err
		}
		for _, mm := range got {
			owner[mm.ID] = target
		}
		candidates = append(candidates, got...)
	}

	now := time.Now().UTC()
	m.engine.ApplyDecay(candidates, now)

	ranked := m.engine.Rank(ctx, candidates, queryVec, p.SessionID, limit, p.MinRelevance, now)

	results := make([]model.Memory, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, r.Memory.Clone())
	}

	for i := range results {
		target, ok := owner[results[i].ID]
		if !ok {
			continue
		}
		if err := target.UpdateAccess(ctx, results[i].ID); err != nil {
			m.logger.Warn("failed to update access count", slog.String("id", results[i].ID), slog.String("cause", err.Error()))
			continue
		}
		results[i].AccessCount++
	}

	return results, nil
}

// gatherCandidates combines a vector scan and a keyword fallback, deduped by
// id, mirroring original_source/core.py's _get_candidates: embeddings find
// semantically close memories, the keyword scan catches memories that
// predate embedding support or whose embedder was unavailable at write time.
// The vector scan only runs when queryVec is non-empty — when embedding the
// query itself failed or was skipped, the candidate pool falls back to
// keyword search alone rather than flooding ranking with every embedded
// memory scored on recency/importance/frequency.
func (m *Mesh) gatherCandidates(ctx context.Context, target store.Store, query string, queryVec []float32) ([]model.Memory, error) {
	if len(queryVec) == 0 {
		return target.SearchByText(ctx, query, 200)
	}

	seen := map[string]bool{}
	var out []model.Memory

	vectorHits, err := target.ScanWithEmbeddings(ctx, 10_000)
	if err != nil {
		return nil, err
	}
	for _, mm := range vectorHits {
		if !seen[mm.ID] {
			seen[mm.ID] = true
			out = append(out, mm)
		}
	}

	if query != "" {
		keywordHits, err := target.SearchByText(ctx, query, 200)
		if err != nil {
			return nil, err
		}
		for _, mm := range keywordHits {
			if !seen[mm.ID] {
				seen[mm.ID] = true
				out = append(out, mm)
			}
		}
	}

	return out, nil
}

// targetsForScope resolves an optional scope filter to the concrete list of
// stores to search: both configured stores when scope is nil, otherwise just
// the one scope names.
func (m *Mesh) targetsForScope(scope *model.Scope) ([]store.Store, error) {
	if scope != nil {
		target, err := m.storeForScope(*scope, false)
		if err != nil {
			return nil, err
		}
		return []store.Store{target}, nil
	}

	var targets []store.Store
	if m.projectStore != nil {
		targets = append(targets, m.projectStore)
	}
	targets = append(targets, m.globalStore)
	return targets, nil
}
