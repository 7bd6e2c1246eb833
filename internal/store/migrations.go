package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mmesh/memorymesh/internal/errs"
)

// Migration is a single additive schema step: it may add columns, tables, or
// indexes, but it never drops or renames. Grounded on
// original_source/migrations.py's Migration NamedTuple list.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// fullSchema is installed in one transaction for a brand-new database.
var fullSchema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		text           TEXT    NOT NULL,
		metadata_json  TEXT    NOT NULL DEFAULT '{}',
		embedding_blob BLOB,
		session_id     TEXT,
		created_at     TEXT    NOT NULL,
		updated_at     TEXT    NOT NULL,
		access_count   INTEGER NOT NULL DEFAULT 0,
		importance     REAL    NOT NULL DEFAULT 0.5,
		decay_rate     REAL    NOT NULL DEFAULT 0.01
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories (importance DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories (updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_session_id ON memories (session_id)`,
	`CREATE TABLE IF NOT EXISTS memorymesh_meta (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
}

// migrations is the ordered, additive-only list applied to a database that
// already exists at some version < latestVersion. v1 is a no-op stamp for
// pre-versioned databases (see ensureSchema case 2); v2 adds session_id and
// its index, the delta spec.md calls out explicitly.
var migrations = []Migration{
	{
		Version:     1,
		Description: "stamp pre-versioned schema",
		Up:          func(tx *sql.Tx) error { return nil },
	},
	{
		Version:     2,
		Description: "add session_id column and index",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE memories ADD COLUMN session_id TEXT`); err != nil {
				// Column already present on a database that was created by
				// fullSchema rather than incrementally migrated.
				if !isDuplicateColumn(err) {
					return err
				}
			}
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_session_id ON memories (session_id)`)
			return err
		},
	},
}

const latestVersion = 2

func isDuplicateColumn(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}

// ensureSchema runs the three cases described in spec.md §4.1.1: fresh
// database, legacy pre-versioned database, and incremental upgrade. Each
// migration step commits in its own transaction; ensureSchema run twice in a
// row is a no-op the second time (idempotence).
func ensureSchema(db *sql.DB) error {
	var current int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return errs.Wrap(errs.IoError, "read schema version", errs.V("cause", err.Error()))
	}

	if current > latestVersion {
		return errs.Wrap(errs.SchemaMismatch, "database schema is newer than this engine supports",
			errs.V("found", current), errs.V("supported", latestVersion))
	}

	tableExists, err := hasTable(db, "memories")
	if err != nil {
		return errs.Wrap(errs.IoError, "check schema", errs.V("cause", err.Error()))
	}

	if !tableExists && current == 0 {
		tx, err := db.Begin()
		if err != nil {
			return errs.Wrap(errs.IoError, "begin fresh schema tx", errs.V("cause", err.Error()))
		}
		for _, stmt := range fullSchema {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return errs.Wrap(errs.IoError, "install schema", errs.V("cause", err.Error()))
			}
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, latestVersion)); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.IoError, "stamp schema version", errs.V("cause", err.Error()))
		}
		return tx.Commit()
	}

	if current == 0 {
		// Legacy pre-versioned database: table exists, version stamp is 0.
		if _, err := db.Exec(`PRAGMA user_version = 1`); err != nil {
			return errs.Wrap(errs.IoError, "stamp legacy schema version", errs.V("cause", err.Error()))
		}
		current = 1
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return errs.Wrap(errs.IoError, "begin migration tx", errs.V("version", m.Version), errs.V("cause", err.Error()))
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.IoError, "apply migration", errs.V("version", m.Version), errs.V("cause", err.Error()))
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, m.Version)); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.IoError, "stamp migration version", errs.V("version", m.Version), errs.V("cause", err.Error()))
		}
		if err := tx.Commit(); err != nil {
			return errs.Wrap(errs.IoError, "commit migration", errs.V("version", m.Version), errs.V("cause", err.Error()))
		}
		current = m.Version
	}

	return nil
}

func hasTable(db *sql.DB, name string) (bool, error) {
	var found string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
