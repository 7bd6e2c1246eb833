package mesh

import (
	"context"
	"log/slog"

	"github.com/mmesh/memorymesh/internal/category"
	"github.com/mmesh/memorymesh/internal/contradiction"
	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/importance"
	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/privacy"
)

// RememberParams holds remember()'s optional arguments. The zero value
// requests the same defaults original_source/core.py's remember() applies:
// importance 0.5, decay_rate 0.01, scope inferred, on_conflict keep_both.
type RememberParams struct {
	Metadata       map[string]any
	Importance     *float64 // nil -> 0.5
	DecayRate      *float64 // nil -> 0.01
	Scope          *model.Scope
	AutoImportance bool
	SessionID      string
	Category       *model.Category
	AutoCategorize bool
	Pin            bool
	Redact         bool
	OnConflict     contradiction.ConflictMode // "" -> ConflictKeepBoth
}

// Remember stores a new memory, applying categorisation, scope inference,
// importance scoring, the privacy guard, and contradiction detection in the
// order spec.md §4.5 prescribes. It returns the new memory's id, or "" if
// OnConflict is ConflictSkip and a contradiction was found.
func (m *Mesh) Remember(ctx context.Context, text string, p RememberParams) (string, error) {
	meta := map[string]any{}
	for k, v := range p.Metadata {
		meta[k] = v
	}

	importanceVal := 0.5
	if p.Importance != nil {
		importanceVal = *p.Importance
	}
	decayRate := 0.01
	if p.DecayRate != nil {
		decayRate = *p.DecayRate
	}

	callerSetScope := p.Scope != nil
	var scope model.Scope
	if callerSetScope {
		scope = *p.Scope
	}

	autoImportance := p.AutoImportance
	cat := p.Category

	if p.AutoCategorize && cat == nil {
		detected := category.AutoCategorize(text, meta)
		cat = &detected
		autoImportance = true
	}

	if cat != nil {
		if !cat.Valid() {
			return "", errs.Wrap(errs.InvalidArgument, "unrecognised category", errs.V("category", string(*cat)))
		}
		scope = cat.ScopeFor()
		callerSetScope = true
		meta["category"] = string(*cat)
	}

	if !callerSetScope {
		if inferred, ok := category.InferScope(text, m.projectName); ok {
			scope = inferred
		}
	}
	if scope == "" {
		scope = model.ScopeGlobal
		if m.projectStore != nil {
			scope = model.ScopeProject
		}
	}
	if !scope.Valid() {
		return "", errs.Wrap(errs.InvalidArgument, "invalid scope", errs.V("scope", string(scope)))
	}

	target, err := m.storeForScope(scope, false)
	if err != nil {
		return "", err
	}

	if autoImportance {
		importanceVal = importance.Score(text, meta)
	}

	if p.Pin {
		importanceVal = 1.0
		decayRate = 0.0
		meta["pinned"] = true
	}

	if secrets := privacy.Detect(text); len(secrets) > 0 {
		m.logger.Warn("potential secrets detected in memory text", slog.Any("types", secrets))
		meta["has_secrets_warning"] = true
		meta["detected_secret_types"] = secrets
		if p.Redact {
			text = privacy.Redact(text)
		}
	}

	vec := m.safeEmbed(ctx, text)

	conflictMode := p.OnConflict
	if conflictMode == "" {
		conflictMode = contradiction.ConflictKeepBoth
	}

	candidates, err := contradiction.Find(ctx, text, vec, target, 0, 0)
	if err != nil {
		return "", err
	}

	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.Memory.ID
		}
		m.logger.Warn("new memory may contradict existing memories", slog.Any("ids", ids))

		switch conflictMode {
		case contradiction.ConflictSkip:
			return "", nil
		case contradiction.ConflictUpdate:
			mostSimilar := candidates[0].Memory
			if _, err := target.Delete(ctx, mostSimilar.ID); err != nil {
				return "", err
			}
			meta["replaced_memory_id"] = mostSimilar.ID
		}
		meta["has_contradiction"] = true
		meta["contradicts"] = ids
	}

	memory := model.Memory{
		Text:       text,
		Metadata:   meta,
		Embedding:  vec,
		Importance: importanceVal,
		DecayRate:  decayRate,
		SessionID:  p.SessionID,
	}

	id, err := target.Insert(ctx, memory)
	if err != nil {
		return "", err
	}

	m.afterWrite(ctx, scope)
	return id, nil
}

// afterWrite bumps the write counter and kicks off an auto-compaction pass
// once compactInterval writes have accumulated. Compaction runs
// synchronously in a background goroutine so remember() never blocks on it;
// a failure is logged and retried on the next threshold crossing, matching
// original_source/core.py's _auto_compact.
func (m *Mesh) afterWrite(ctx context.Context, scope model.Scope) {
	if m.compactInterval <= 0 {
		return
	}
	m.mu.Lock()
	m.writesSinceCompact++
	reached := m.writesSinceCompact >= m.compactInterval
	if reached {
		m.writesSinceCompact = 0
	}
	m.mu.Unlock()

	if !reached {
		return
	}
	go func() {
		result, err := m.Compact(m.compactCtx, scope, 0.85, false)
		if err != nil {
			m.logger.Warn("auto-compaction failed, will retry later", slog.String("cause", err.Error()))
			return
		}
		if result.MergedCount > 0 {
			m.logger.Info("auto-compacted duplicates", slog.Int("merged", result.MergedCount), slog.String("scope", string(scope)))
		}
	}()
}
