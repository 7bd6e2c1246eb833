// Package model defines the core MemoryMesh data types: the Memory entity,
// its scope and category, and the validation invariants that apply at every
// boundary (store, mesh, encryption).
package model

import (
	"encoding/hex"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MaxTextLength is the maximum accepted length, in runes, of a memory's text.
const MaxTextLength = 100_000

// MaxMetadataBytes is the maximum accepted serialised size of a memory's
// metadata.
const MaxMetadataBytes = 10_000

// MetadataKeyPattern is the identifier shape a metadata key must match to be
// used in a filter. Enforced at the filter boundary, never on write.
var MetadataKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Scope selects which store (project or global) a memory belongs to. It is a
// capability carried by the orchestrator, never a stored column.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Valid reports whether s is one of the two recognised scopes.
func (s Scope) Valid() bool {
	return s == ScopeProject || s == ScopeGlobal
}

// Category is one of the nine semantic tags with a fixed scope-routing rule.
type Category string

const (
	CategoryPreference     Category = "preference"
	CategoryGuardrail      Category = "guardrail"
	CategoryMistake        Category = "mistake"
	CategoryPersonality    Category = "personality"
	CategoryQuestion       Category = "question"
	CategoryDecision       Category = "decision"
	CategoryPattern        Category = "pattern"
	CategoryContext        Category = "context"
	CategorySessionSummary Category = "session_summary"
)

// categoryScope maps each recognised category to its default routing scope.
var categoryScope = map[Category]Scope{
	CategoryPreference:     ScopeGlobal,
	CategoryGuardrail:      ScopeGlobal,
	CategoryMistake:        ScopeGlobal,
	CategoryPersonality:    ScopeGlobal,
	CategoryQuestion:       ScopeGlobal,
	CategoryDecision:       ScopeProject,
	CategoryPattern:        ScopeProject,
	CategoryContext:        ScopeProject,
	CategorySessionSummary: ScopeProject,
}

// AllCategories lists every recognised category, in the fixed order used for
// display and for auto-categorisation fallback ordering.
var AllCategories = []Category{
	CategoryPreference, CategoryGuardrail, CategoryMistake, CategoryPersonality,
	CategoryQuestion, CategoryDecision, CategoryPattern, CategoryContext,
	CategorySessionSummary,
}

// Valid reports whether c is a recognised category.
func (c Category) Valid() bool {
	_, ok := categoryScope[c]
	return ok
}

// ScopeFor returns the default routing scope for c. The zero value is
// returned for an unrecognised category; callers should check Valid first.
func (c Category) ScopeFor() Scope {
	return categoryScope[c]
}

// Memory is the sole durable entity MemoryMesh stores.
type Memory struct {
	ID             string
	Text           string
	Metadata       map[string]any
	Embedding      []float32
	SessionID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AccessCount    uint64
	Importance     float64
	DecayRate      float64
	Scope          Scope
}

// NewID returns a fresh 128-bit identifier rendered as 32 lowercase hex
// characters, per the data model's id format.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Clamp enforces the write-time invariants: importance in [0,1], decay_rate
// >= 0, created_at <= updated_at. It does not touch text or metadata size —
// those are validated at the store boundary where the exact limits live.
func (m *Memory) Clamp() {
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}
	if m.DecayRate < 0 {
		m.DecayRate = 0
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	if m.UpdatedAt.Before(m.CreatedAt) {
		m.UpdatedAt = m.CreatedAt
	}
}

// Pin sets the two fields pinning a memory as permanent: importance 1.0,
// decay_rate 0.0 (never fades).
func (m *Memory) Pin() {
	m.Importance = 1.0
	m.DecayRate = 0.0
}

// Clone returns a deep copy of m so callers can mutate the result freely
// without that mutation propagating back into storage (spec requires
// recall/get to hand back snapshots, never live references).
func (m Memory) Clone() Memory {
	out := m
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	return out
}
