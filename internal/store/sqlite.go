package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/model"
)

// MaxRows is the store-level row cap; Insert rejects new rows once the store
// holds this many, returning errs.CapacityExceeded.
const MaxRows = 100_000

// SQLiteStore is the canonical Store implementation, grounded on
// rcliao-agent-memory's internal/store/sqlite.go (database/sql +
// modernc.org/sqlite, WAL pragma, schema-in-Go-literal) generalised from the
// teacher's ns/key memory rows to this module's single-scope-per-file
// memories table.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	codec FieldCodec
}

// Open creates or opens a SQLite-backed store at path, ensuring the
// containing directory and database file carry restrictive permissions and
// that the schema is migrated to the latest version. The returned store uses
// Passthrough field encoding; call SetCodec before any other use to enable
// at-rest encryption.
func Open(path string) (*SQLiteStore, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "resolve store path", errs.V("path", path), errs.V("cause", err.Error()))
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.Wrap(errs.IoError, "create store directory", errs.V("dir", dir), errs.V("cause", err.Error()))
	}
	_ = os.Chmod(dir, 0o700)

	dsn := resolved + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "open database", errs.V("path", resolved), errs.V("cause", err.Error()))
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(resolved, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, errs.Wrap(errs.IoError, "set database file mode", errs.V("cause", err.Error()))
	}

	return &SQLiteStore{db: db, path: resolved, codec: Passthrough{}}, nil
}

// resolvePath canonicalises path through the OS's symlink-resolution routine
// to defeat symlink-based traversal, falling back to an absolute path when
// the file does not exist yet (EvalSymlinks requires an existing target).
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		// Parent directory doesn't exist yet; nothing to resolve.
		return abs, nil
	}
	return filepath.Join(resolvedDir, filepath.Base(abs)), nil
}

// SetCodec installs the FieldCodec used to encode/decode the text and
// metadata_json columns. Must be called before any other method, and exactly
// once, by the caller that bootstraps encryption (internal/mesh).
func (s *SQLiteStore) SetCodec(codec FieldCodec) {
	if codec == nil {
		codec = Passthrough{}
	}
	s.codec = codec
}

// Salt returns the persisted encryption salt, if one has been set.
func (s *SQLiteStore) Salt(ctx context.Context) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM memorymesh_meta WHERE key = 'salt'`).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.IoError, "read salt", errs.V("cause", err.Error()))
	}
	return value, true, nil
}

// SetSalt persists the encryption salt, overwriting any previous value.
func (s *SQLiteStore) SetSalt(ctx context.Context, salt []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memorymesh_meta (key, value) VALUES ('salt', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, salt)
	if err != nil {
		return errs.Wrap(errs.IoError, "persist salt", errs.V("cause", err.Error()))
	}
	return nil
}

func (s *SQLiteStore) embeddingDim(ctx context.Context) (int, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM memorymesh_meta WHERE key = 'embedding_dim'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(value) != 4 {
		return 0, false, nil
	}
	return int(binary.LittleEndian.Uint32(value)), true, nil
}

func (s *SQLiteStore) setEmbeddingDim(ctx context.Context, dim int) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(dim))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memorymesh_meta (key, value) VALUES ('embedding_dim', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, buf)
	return err
}

// Insert validates and stores a new memory, returning its id.
func (s *SQLiteStore) Insert(ctx context.Context, m model.Memory) (string, error) {
	if err := validateMemory(m); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errs.Wrap(errs.IoError, "begin insert tx", errs.V("cause", err.Error()))
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return "", errs.Wrap(errs.IoError, "count memories", errs.V("cause", err.Error()))
	}
	if count >= MaxRows {
		return "", errs.Wrap(errs.CapacityExceeded, "store is at its row cap",
			errs.V("cap", MaxRows), errs.V("hint", "forget or compact existing memories before adding more"))
	}

	if len(m.Embedding) > 0 {
		if dim, ok, err := s.embeddingDim(ctx); err != nil {
			return "", errs.Wrap(errs.IoError, "read embedding dimension", errs.V("cause", err.Error()))
		} else if ok && dim != len(m.Embedding) {
			return "", errs.Wrap(errs.InvalidArgument, "embedding dimension does not match store's established dimension",
				errs.V("expected", dim), errs.V("got", len(m.Embedding)))
		} else if !ok {
			if err := s.setEmbeddingDim(ctx, len(m.Embedding)); err != nil {
				return "", errs.Wrap(errs.IoError, "persist embedding dimension", errs.V("cause", err.Error()))
			}
		}
	}

	if m.ID == "" {
		m.ID = model.NewID()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	encText, metaJSON, err := s.encodeFields(m.Text, m.Metadata)
	if err != nil {
		return "", err
	}

	var sessionID *string
	if m.SessionID != "" {
		sessionID = &m.SessionID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, text, metadata_json, embedding_blob, session_id,
		                       created_at, updated_at, access_count, importance, decay_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, encText, metaJSON, packEmbedding(m.Embedding), sessionID,
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano),
		m.AccessCount, m.Importance, m.DecayRate)
	if err != nil {
		return "", errs.Wrap(errs.IoError, "insert memory", errs.V("cause", err.Error()))
	}

	if err := tx.Commit(); err != nil {
		return "", errs.Wrap(errs.IoError, "commit insert", errs.V("cause", err.Error()))
	}
	return m.ID, nil
}

func validateMemory(m model.Memory) error {
	if len([]rune(m.Text)) == 0 {
		return errs.Wrap(errs.InvalidArgument, "memory text must not be empty")
	}
	if len([]rune(m.Text)) > model.MaxTextLength {
		return errs.Wrap(errs.InvalidArgument, "memory text exceeds maximum length",
			errs.V("max", model.MaxTextLength), errs.V("got", len([]rune(m.Text))))
	}
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, "metadata is not JSON-serialisable", errs.V("cause", err.Error()))
		}
		if len(b) > model.MaxMetadataBytes {
			return errs.Wrap(errs.InvalidArgument, "metadata exceeds maximum serialised size",
				errs.V("max", model.MaxMetadataBytes), errs.V("got", len(b)))
		}
	}
	for _, f := range m.Embedding {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return errs.Wrap(errs.InvalidArgument, "embedding contains a non-finite value")
		}
	}
	return nil
}

func (s *SQLiteStore) encodeFields(text string, metadata map[string]any) (encText, metaJSON string, err error) {
	encText, err = s.codec.Encode(text)
	if err != nil {
		return "", "", errs.Wrap(errs.EncryptionError, "encode text", errs.V("cause", err.Error()))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return "", "", errs.Wrap(errs.InvalidArgument, "marshal metadata", errs.V("cause", err.Error()))
	}
	metaJSON, err = s.codec.Encode(string(rawMeta))
	if err != nil {
		return "", "", errs.Wrap(errs.EncryptionError, "encode metadata", errs.V("cause", err.Error()))
	}
	return encText, metaJSON, nil
}

func (s *SQLiteStore) decodeFields(encText, metaJSON string) (text string, metadata map[string]any, err error) {
	text, err = s.codec.Decode(encText)
	if err != nil {
		return "", nil, errs.Wrap(errs.EncryptionError, "decode text", errs.V("cause", err.Error()))
	}
	rawMeta, err := s.codec.Decode(metaJSON)
	if err != nil {
		return "", nil, errs.Wrap(errs.EncryptionError, "decode metadata", errs.V("cause", err.Error()))
	}
	metadata = map[string]any{}
	if rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &metadata); err != nil {
			return "", nil, errs.Wrap(errs.IoError, "unmarshal metadata", errs.V("cause", err.Error()))
		}
	}
	return text, metadata, nil
}

// Get retrieves a single memory by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Memory, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM memories WHERE id = ?`, id)
	m, err := s.scanMemory(row)
	if err == sql.ErrNoRows {
		return model.Memory{}, errs.Wrap(errs.NotFound, "memory not found", errs.V("id", id))
	}
	if err != nil {
		return model.Memory{}, err
	}
	return m, nil
}

// Delete removes a memory by id, reporting whether it existed.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, errs.Wrap(errs.IoError, "delete memory", errs.V("cause", err.Error()))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteAll removes every memory in the store, returning the count deleted.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return 0, errs.Wrap(errs.IoError, "count memories", errs.V("cause", err.Error()))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return 0, errs.Wrap(errs.IoError, "delete all memories", errs.V("cause", err.Error()))
	}
	return count, nil
}

// UpdateFields applies a partial update. created_at and id are immutable and
// not represented in FieldUpdate.
func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, u FieldUpdate) error {
	sets := []string{}
	args := []any{}

	if u.Text != nil {
		encText, err := s.codec.Encode(*u.Text)
		if err != nil {
			return errs.Wrap(errs.EncryptionError, "encode text", errs.V("cause", err.Error()))
		}
		sets = append(sets, "text = ?")
		args = append(args, encText)
	}
	if u.Importance != nil {
		v := clamp01(*u.Importance)
		sets = append(sets, "importance = ?")
		args = append(args, v)
	}
	if u.DecayRate != nil {
		v := *u.DecayRate
		if v < 0 {
			v = 0
		}
		sets = append(sets, "decay_rate = ?")
		args = append(args, v)
	}
	if u.Metadata != nil {
		raw, err := json.Marshal(*u.Metadata)
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, "marshal metadata", errs.V("cause", err.Error()))
		}
		encMeta, err := s.codec.Encode(string(raw))
		if err != nil {
			return errs.Wrap(errs.EncryptionError, "encode metadata", errs.V("cause", err.Error()))
		}
		sets = append(sets, "metadata_json = ?")
		args = append(args, encMeta)
	}
	if u.Embedding != nil {
		emb := *u.Embedding
		for _, f := range derefEmbedding(emb) {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return errs.Wrap(errs.InvalidArgument, "embedding contains a non-finite value")
			}
		}
		sets = append(sets, "embedding_blob = ?")
		args = append(args, packEmbedding(derefEmbedding(emb)))
	}
	if u.UpdatedAt != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, u.UpdatedAt.Format(time.RFC3339Nano))
	} else if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE memories SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.IoError, "update memory fields", errs.V("cause", err.Error()))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Wrap(errs.NotFound, "memory not found", errs.V("id", id))
	}
	return nil
}

func derefEmbedding(p *[]float32) []float32 {
	if p == nil {
		return nil
	}
	return *p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UpdateAccess increments access_count and refreshes updated_at for id.
func (s *SQLiteStore) UpdateAccess(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return errs.Wrap(errs.IoError, "update access", errs.V("cause", err.Error()))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Wrap(errs.NotFound, "memory not found", errs.V("id", id))
	}
	return nil
}

// Close closes the underlying database connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, text, metadata_json, embedding_blob, session_id,
	created_at, updated_at, access_count, importance, decay_rate`

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanMemory(row scanner) (model.Memory, error) {
	var (
		m                        model.Memory
		encText, metaJSON        string
		embeddingBlob            []byte
		sessionID                sql.NullString
		createdAt, updatedAt     string
	)
	if err := row.Scan(&m.ID, &encText, &metaJSON, &embeddingBlob, &sessionID,
		&createdAt, &updatedAt, &m.AccessCount, &m.Importance, &m.DecayRate); err != nil {
		return model.Memory{}, err
	}

	text, metadata, err := s.decodeFields(encText, metaJSON)
	if err != nil {
		return model.Memory{}, err
	}
	m.Text = text
	m.Metadata = metadata
	m.Embedding = unpackEmbedding(embeddingBlob)
	if sessionID.Valid {
		m.SessionID = sessionID.String
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return m, nil
}

func packEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackEmbedding(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
