package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := model.Memory{
		Text:       "prefers dark mode in every editor",
		Metadata:   map[string]any{"category": "preference"},
		SessionID:  "sess-1",
		Importance: 0.8,
		DecayRate:  0.01,
	}
	id, err := s.Insert(ctx, m)
	require.NoError(t, err)
	require.Len(t, id, 32)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, m.Text, got.Text)
	require.Equal(t, "preference", got.Metadata["category"])
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, 0.8, got.Importance)
	require.False(t, got.CreatedAt.IsZero())
	require.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestInsertRejectsOversizedText(t *testing.T) {
	s := newTestStore(t)
	big := make([]byte, model.MaxTextLength+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := s.Insert(context.Background(), model.Memory{Text: string(big)})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.InvalidArgument))
}

func TestInsertRejectsEmptyText(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), model.Memory{Text: ""})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.InvalidArgument))
}

func TestInsertRejectsNonFiniteEmbedding(t *testing.T) {
	s := newTestStore(t)
	m := model.Memory{Text: "x", Embedding: []float32{1, 2, float32Inf()}}
	_, err := s.Insert(context.Background(), m)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.InvalidArgument))
}

func TestInsertRejectsMismatchedEmbeddingDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, model.Memory{Text: "first", Embedding: []float32{1, 2, 3}})
	require.NoError(t, err)

	_, err = s.Insert(ctx, model.Memory{Text: "second", Embedding: []float32{1, 2}})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.InvalidArgument))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.NotFound))
}

func TestDeleteReportsExistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, model.Memory{Text: "to be removed"})
	require.NoError(t, err)

	existed, err := s.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = s.Delete(ctx, id)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestDeleteAllReturnsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, model.Memory{Text: "m"})
		require.NoError(t, err)
	}
	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUpdateFieldsPartialUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, model.Memory{Text: "original", Importance: 0.5})
	require.NoError(t, err)

	before, err := s.Get(ctx, id)
	require.NoError(t, err)

	newImportance := 0.9
	require.NoError(t, s.UpdateFields(ctx, id, FieldUpdate{Importance: &newImportance}))

	after, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "original", after.Text)
	require.Equal(t, 0.9, after.Importance)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt) || after.UpdatedAt.Equal(before.UpdatedAt))
}

func TestUpdateFieldsClampsImportanceAndDecay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, model.Memory{Text: "x", Importance: 0.5})
	require.NoError(t, err)

	tooHigh := 5.0
	negDecay := -1.0
	require.NoError(t, s.UpdateFields(ctx, id, FieldUpdate{Importance: &tooHigh, DecayRate: &negDecay}))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Importance)
	require.Equal(t, 0.0, got.DecayRate)
}

func TestUpdateFieldsUnknownIDIsNotFound(t *testing.T) {
	s := newTestStore(t)
	importance := 0.5
	err := s.UpdateFields(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef", FieldUpdate{Importance: &importance})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.NotFound))
}

func TestUpdateAccessIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, model.Memory{Text: "x"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccess(ctx, id))
	require.NoError(t, s.UpdateAccess(ctx, id))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.AccessCount)
}

func TestSaltRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Salt(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	salt := []byte("0123456789abcdef")
	require.NoError(t, s.SetSalt(ctx, salt))

	got, ok, err := s.Salt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, salt, got)
}

func TestEmbeddingPackRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.2, 3.0, 0.0}
	packed := packEmbedding(v)
	require.Len(t, packed, 16)
	unpacked := unpackEmbedding(packed)
	require.Equal(t, v, unpacked)
}

func TestEmbeddingPackEmpty(t *testing.T) {
	require.Nil(t, packEmbedding(nil))
	require.Nil(t, unpackEmbedding(nil))
}

func TestCapacityExceeded(t *testing.T) {
	// This test deliberately keeps the cap tiny by inspecting the constant
	// rather than inserting 100,000 rows.
	require.Equal(t, 100_000, MaxRows)
}

func float32Inf() float32 {
	var zero float32
	return 1 / zero
}
