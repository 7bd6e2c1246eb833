package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/model"
)

// ScanWithEmbeddings returns every memory that has a stored embedding, up to
// limit (0 means unlimited). This is the O(N) full-scan the semantic side of
// relevance scoring runs against; spec.md documents this as a known
// limitation rather than something this layer hides behind a fake index.
func (s *SQLiteStore) ScanWithEmbeddings(ctx context.Context, limit int) ([]model.Memory, error) {
	query := selectColumns + ` FROM memories WHERE embedding_blob IS NOT NULL ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMemories(ctx, query, args...)
}

// SearchByText performs a literal, case-insensitive substring match against
// decoded memory text. Because matching happens against plaintext, this
// necessarily scans every row rather than pushing the predicate into SQL
// when the store is encrypted; for the plaintext store it still scans in Go
// so encrypted and plaintext stores behave identically (see DESIGN.md).
func (s *SQLiteStore) SearchByText(ctx context.Context, substring string, limit int) ([]model.Memory, error) {
	needle := strings.ToLower(substring)
	query := selectColumns + ` FROM memories ORDER BY updated_at DESC`
	all, err := s.queryMemories(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(all))
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Text), needle) {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// SearchFiltered narrows a scan by category, minimum importance, a created
// time range, and arbitrary metadata key/value equality. Every metadata key
// is validated against model.MetadataKeyPattern before any query executes —
// an invalid key is rejected outright rather than silently matching nothing.
func (s *SQLiteStore) SearchFiltered(ctx context.Context, filter Filter, limit int) ([]model.Memory, error) {
	for key := range filter.MetadataFilter {
		if !model.MetadataKeyPattern.MatchString(key) {
			return nil, errs.Wrap(errs.InvalidArgument, "invalid metadata filter key",
				errs.V("key", key))
		}
	}

	query := selectColumns + ` FROM memories WHERE 1=1`
	args := []any{}

	if filter.MinImportance != nil {
		query += ` AND importance >= ?`
		args = append(args, *filter.MinImportance)
	}
	if filter.TimeRange != nil {
		if !filter.TimeRange.After.IsZero() {
			query += ` AND created_at >= ?`
			args = append(args, filter.TimeRange.After.UTC().Format(time.RFC3339Nano))
		}
		if !filter.TimeRange.Before.IsZero() {
			query += ` AND created_at <= ?`
			args = append(args, filter.TimeRange.Before.UTC().Format(time.RFC3339Nano))
		}
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(rows))
	for _, m := range rows {
		if filter.Category != nil {
			got, ok := m.Metadata["category"]
			if !ok || got != string(*filter.Category) {
				continue
			}
		}
		if !matchesMetadata(m.Metadata, filter.MetadataFilter) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesMetadata(have, want map[string]any) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || hv != v {
			return false
		}
	}
	return true
}

// Count returns the total number of stored memories.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.IoError, "count memories", errs.V("cause", err.Error()))
	}
	return n, nil
}

// TimeRange reports the oldest and newest created_at timestamps in the
// store. ok is false when the store is empty.
func (s *SQLiteStore) TimeRange(ctx context.Context) (oldest, newest time.Time, ok bool, err error) {
	var minS, maxS sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM memories`)
	if scanErr := row.Scan(&minS, &maxS); scanErr != nil {
		return time.Time{}, time.Time{}, false, errs.Wrap(errs.IoError, "read time range", errs.V("cause", scanErr.Error()))
	}
	if !minS.Valid || !maxS.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	oldest, _ = time.Parse(time.RFC3339Nano, minS.String)
	newest, _ = time.Parse(time.RFC3339Nano, maxS.String)
	return oldest, newest, true, nil
}

// List returns a page of memories ordered by most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]model.Memory, error) {
	query := selectColumns + ` FROM memories ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}
	return s.queryMemories(ctx, query, args...)
}

// GetBySession returns every memory carrying the given session_id, ordered
// by creation time ascending.
func (s *SQLiteStore) GetBySession(ctx context.Context, sessionID string) ([]model.Memory, error) {
	query := selectColumns + ` FROM memories WHERE session_id = ? ORDER BY created_at ASC`
	return s.queryMemories(ctx, query, sessionID)
}

// ListSessions returns distinct session_ids with summary statistics, most
// recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := `SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		FROM memories WHERE session_id IS NOT NULL AND session_id != ''
		GROUP BY session_id ORDER BY MAX(created_at) DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "query sessions", errs.V("cause", err.Error()))
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var sessionID, firstS, lastS string
		var count int
		if err := rows.Scan(&sessionID, &count, &firstS, &lastS); err != nil {
			return nil, errs.Wrap(errs.IoError, "scan session row", errs.V("cause", err.Error()))
		}
		first, _ := time.Parse(time.RFC3339Nano, firstS)
		last, _ := time.Parse(time.RFC3339Nano, lastS)
		out = append(out, SessionSummary{SessionID: sessionID, Count: count, FirstAt: first, LastAt: last})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "iterate session rows", errs.V("cause", err.Error()))
	}
	return out, nil
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...any) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "query memories", errs.V("cause", err.Error()))
	}
	defer rows.Close()

	out := []model.Memory{}
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, errs.Wrap(errs.IoError, "scan memory row", errs.V("cause", err.Error()))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "iterate memory rows", errs.V("cause", err.Error()))
	}
	return out, nil
}
