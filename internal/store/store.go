// Package store provides the MemoryMesh persistent storage interface and its
// SQLite implementation: durable CRUD for memories, indexed scans, additive
// schema migrations, and an optional field-encryption seam.
package store

import (
	"context"
	"time"

	"github.com/mmesh/memorymesh/internal/model"
)

// TimeRange bounds a time-based filter. A zero Before means "no upper
// bound"; a zero After means "no lower bound".
type TimeRange struct {
	After  time.Time
	Before time.Time
}

// Filter narrows a SearchFiltered scan. All fields are optional (nil/zero
// means "no constraint on this dimension").
type Filter struct {
	Category       *model.Category
	MinImportance  *float64
	TimeRange      *TimeRange
	MetadataFilter map[string]any
}

// FieldUpdate is a partial update to a memory row. A nil pointer means
// "leave this field unchanged". Embedding uses a pointer-to-pointer so a
// caller can explicitly clear it (set the outer pointer to a pointer-to-nil
// slice) versus leaving it untouched (outer pointer nil).
type FieldUpdate struct {
	Text       *string
	Importance *float64
	DecayRate  *float64
	Metadata   *map[string]any
	Embedding  **[]float32
	UpdatedAt  *time.Time
}

// Store is the full persistence contract. Both the plaintext SQLiteStore and
// an encryption-wrapped store implement every method uniformly — there is no
// asymmetric subset, unlike the duck-typed original this module is modelled
// on (see DESIGN.md).
type Store interface {
	Insert(ctx context.Context, m model.Memory) (string, error)
	Get(ctx context.Context, id string) (model.Memory, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) (int, error)
	UpdateFields(ctx context.Context, id string, u FieldUpdate) error
	UpdateAccess(ctx context.Context, id string) error

	ScanWithEmbeddings(ctx context.Context, limit int) ([]model.Memory, error)
	SearchByText(ctx context.Context, substring string, limit int) ([]model.Memory, error)
	SearchFiltered(ctx context.Context, filter Filter, limit int) ([]model.Memory, error)

	Count(ctx context.Context) (int, error)
	TimeRange(ctx context.Context) (oldest, newest time.Time, ok bool, err error)
	List(ctx context.Context, limit, offset int) ([]model.Memory, error)

	GetBySession(ctx context.Context, sessionID string) ([]model.Memory, error)
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)

	Close() error
}

// SessionSummary describes one distinct session_id value found in a store.
type SessionSummary struct {
	SessionID string
	Count     int
	FirstAt   time.Time
	LastAt    time.Time
}
