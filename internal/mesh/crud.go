package mesh

import (
	"context"
	"errors"
	"time"

	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/store"
)

// Forget deletes a memory by id, trying the project store before the global
// store. It returns false (no error) when no memory with that id exists in
// either store.
func (m *Mesh) Forget(ctx context.Context, id string) (bool, error) {
	if m.projectStore != nil {
		ok, err := m.projectStore.Delete(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return m.globalStore.Delete(ctx, id)
}

// ForgetAll wipes every memory in scope. scope must be explicit — there is
// no "wipe everything" shortcut, so a caller can never accidentally empty
// both stores with a single call.
func (m *Mesh) ForgetAll(ctx context.Context, scope model.Scope) (int, error) {
	target, err := m.storeForScope(scope, false)
	if err != nil {
		return 0, err
	}
	return target.DeleteAll(ctx)
}

// Get retrieves a single memory by id, trying the project store before the
// global store, and stamps the result's Scope field with whichever store it
// came from.
func (m *Mesh) Get(ctx context.Context, id string) (model.Memory, error) {
	if m.projectStore != nil {
		mm, err := m.projectStore.Get(ctx, id)
		if err == nil {
			mm.Scope = model.ScopeProject
			return mm, nil
		}
		if !errors.Is(err, errs.NotFound) {
			return model.Memory{}, err
		}
	}
	mm, err := m.globalStore.Get(ctx, id)
	if err != nil {
		return model.Memory{}, err
	}
	mm.Scope = model.ScopeGlobal
	return mm, nil
}

// ListParams narrows a List call. The zero value lists everything in scope.
type ListParams struct {
	Scope  *model.Scope // nil -> merge both stores
	Limit  int          // <= 0 -> 100
	Offset int
}

// List returns memories ordered by most recently updated first. When Scope
// is nil, it merges both stores and re-sorts, since neither store's
// pagination order is meaningful across the merge.
func (m *Mesh) List(ctx context.Context, p ListParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	if p.Scope != nil {
		target, err := m.storeForScope(*p.Scope, false)
		if err != nil {
			return nil, err
		}
		got, err := target.List(ctx, limit, p.Offset)
		if err != nil {
			return nil, err
		}
		for i := range got {
			got[i].Scope = *p.Scope
		}
		return got, nil
	}

	var merged []model.Memory
	if m.projectStore != nil {
		got, err := m.projectStore.List(ctx, limit+p.Offset, 0)
		if err != nil {
			return nil, err
		}
		for i := range got {
			got[i].Scope = model.ScopeProject
		}
		merged = append(merged, got...)
	}
	got, err := m.globalStore.List(ctx, limit+p.Offset, 0)
	if err != nil {
		return nil, err
	}
	for i := range got {
		got[i].Scope = model.ScopeGlobal
	}
	merged = append(merged, got...)

	sortByUpdatedAtDesc(merged)

	if p.Offset >= len(merged) {
		return nil, nil
	}
	merged = merged[p.Offset:]
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func sortByUpdatedAtDesc(memories []model.Memory) {
	for i := 1; i < len(memories); i++ {
		for j := i; j > 0 && memories[j].UpdatedAt.After(memories[j-1].UpdatedAt); j-- {
			memories[j], memories[j-1] = memories[j-1], memories[j]
		}
	}
}

// Count reports the number of memories in scope, or across both stores when
// scope is nil.
func (m *Mesh) Count(ctx context.Context, scope *model.Scope) (int, error) {
	if scope != nil {
		target, err := m.storeForScope(*scope, false)
		if err != nil {
			return 0, err
		}
		return target.Count(ctx)
	}

	total := 0
	if m.projectStore != nil {
		n, err := m.projectStore.Count(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, err := m.globalStore.Count(ctx)
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

// GetTimeRange reports the oldest and newest created_at timestamps across
// scope (or both stores when scope is nil). ok is false when the scope holds
// no memories.
func (m *Mesh) GetTimeRange(ctx context.Context, scope *model.Scope) (oldest, newest time.Time, ok bool, err error) {
	if scope != nil {
		target, serr := m.storeForScope(*scope, false)
		if serr != nil {
			return time.Time{}, time.Time{}, false, serr
		}
		return target.TimeRange(ctx)
	}

	var targets []store.Store
	if m.projectStore != nil {
		targets = append(targets, m.projectStore)
	}
	targets = append(targets, m.globalStore)

	for _, target := range targets {
		o, n, got, terr := target.TimeRange(ctx)
		if terr != nil {
			return time.Time{}, time.Time{}, false, terr
		}
		if !got {
			continue
		}
		if !ok || o.Before(oldest) {
			oldest = o
		}
		if !ok || n.After(newest) {
			newest = n
		}
		ok = true
	}
	return oldest, newest, ok, nil
}

// UpdateParams is a partial update to an existing memory. A nil pointer
// leaves the corresponding field unchanged; Embedding follows
// store.FieldUpdate's pointer-to-pointer convention to distinguish "leave
// untouched" (nil) from "clear" (pointer to a nil slice).
type UpdateParams struct {
	Text       *string
	Importance *float64
	DecayRate  *float64
	Metadata   *map[string]any
	Embedding  **[]float32
	Scope      *model.Scope // non-nil triggers a delete-then-recreate migration
}

// Update applies params to the memory named by id. Changing Scope migrates
// the memory between stores (delete from the old, insert into the new,
// assigning a fresh id) since a memory's store is its scope; every other
// field updates in place via UpdateFields. This mirrors
// original_source/core.py's update(), which does the same delete-then-create
// dance when scope changes.
func (m *Mesh) Update(ctx context.Context, id string, p UpdateParams) (model.Memory, error) {
	existing, err := m.Get(ctx, id)
	if err != nil {
		return model.Memory{}, err
	}

	if p.Scope != nil && *p.Scope != existing.Scope {
		return m.migrateScope(ctx, existing, p)
	}

	target, err := m.storeForScope(existing.Scope, false)
	if err != nil {
		return model.Memory{}, err
	}

	update := store.FieldUpdate{
		Text:       p.Text,
		Importance: p.Importance,
		DecayRate:  p.DecayRate,
		Metadata:   p.Metadata,
		Embedding:  p.Embedding,
	}
	if err := target.UpdateFields(ctx, id, update); err != nil {
		return model.Memory{}, err
	}

	return m.Get(ctx, id)
}

func (m *Mesh) migrateScope(ctx context.Context, existing model.Memory, p UpdateParams) (model.Memory, error) {
	newTarget, err := m.storeForScope(*p.Scope, false)
	if err != nil {
		return model.Memory{}, err
	}
	oldTarget, err := m.storeForScope(existing.Scope, false)
	if err != nil {
		return model.Memory{}, err
	}

	next := existing
	next.ID = ""
	if p.Text != nil {
		next.Text = *p.Text
	}
	if p.Importance != nil {
		next.Importance = *p.Importance
	}
	if p.DecayRate != nil {
		next.DecayRate = *p.DecayRate
	}
	if p.Metadata != nil {
		next.Metadata = *p.Metadata
	}
	if p.Embedding != nil {
		if *p.Embedding == nil {
			next.Embedding = nil
		} else {
			next.Embedding = **p.Embedding
		}
	}

	if _, err := oldTarget.Delete(ctx, existing.ID); err != nil {
		return model.Memory{}, err
	}

	newID, err := newTarget.Insert(ctx, next)
	if err != nil {
		return model.Memory{}, err
	}

	result, err := newTarget.Get(ctx, newID)
	if err != nil {
		return model.Memory{}, err
	}
	result.Scope = *p.Scope
	return result, nil
}
