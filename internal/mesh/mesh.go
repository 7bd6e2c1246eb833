// Package mesh is the public façade tying the store, embedding, encryption,
// relevance, importance, category, privacy, contradiction, and compaction
// packages into the three-method API (remember/recall/forget) and its
// supporting operations. Grounded on original_source/core.py's MemoryMesh
// class, which owns exactly a project store, a global store, an embedding
// provider, a relevance engine, and a write counter driving auto-compaction.
package mesh

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmesh/memorymesh/internal/embedding"
	"github.com/mmesh/memorymesh/internal/encryption"
	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/model"
	"github.com/mmesh/memorymesh/internal/observability"
	"github.com/mmesh/memorymesh/internal/relevance"
	"github.com/mmesh/memorymesh/internal/store"
)

// Mesh is the hybrid dual-store orchestrator: a project store (optional) and
// a global store (always present), an embedding provider, and a relevance
// engine, combined behind the operations in spec.md §4.5.
type Mesh struct {
	projectStore store.Store // nil when no project path was configured
	globalStore  store.Store
	projectPath  string
	globalPath   string
	projectName  string

	embedder embedding.Embedder
	engine   *relevance.Engine
	logger   *slog.Logger

	compactInterval int
	mu              sync.Mutex
	writesSinceCompact int

	compactCtx    context.Context
	compactCancel context.CancelFunc
}

// New opens the stores named by cfg, wires encryption and the embedding
// provider, and returns a ready-to-use Mesh. The global store is mandatory;
// a failure to open it is a fatal construction error. The project store is
// optional — its absence is not an error, only a later constraint on
// project-scope operations.
func New(ctx context.Context, cfg Config) (*Mesh, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.Default()
	}

	globalPath, err := cfg.resolveGlobalPath()
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "resolve global store path", errs.V("cause", err.Error()))
	}

	globalSQLite, err := store.Open(globalPath)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "open global store", errs.V("path", globalPath), errs.V("cause", err.Error()))
	}

	var projectSQLite *store.SQLiteStore
	var projectName string
	if cfg.ProjectPath != "" {
		projectSQLite, err = store.Open(cfg.ProjectPath)
		if err != nil {
			globalSQLite.Close()
			return nil, errs.Wrap(errs.IoError, "open project store", errs.V("path", cfg.ProjectPath), errs.V("cause", err.Error()))
		}
		projectName = projectNameFromPath(cfg.ProjectPath)
	}

	if cfg.EncryptionPassphrase != "" {
		globalCodec, err := encryption.Bootstrap(ctx, globalSQLite, cfg.EncryptionPassphrase)
		if err != nil {
			globalSQLite.Close()
			if projectSQLite != nil {
				projectSQLite.Close()
			}
			return nil, errs.Wrap(errs.EncryptionError, "bootstrap global store encryption", errs.V("cause", err.Error()))
		}
		globalSQLite.SetCodec(globalCodec)

		if projectSQLite != nil {
			projectCodec, err := encryption.Bootstrap(ctx, projectSQLite, cfg.EncryptionPassphrase)
			if err != nil {
				globalSQLite.Close()
				projectSQLite.Close()
				return nil, errs.Wrap(errs.EncryptionError, "bootstrap project store encryption", errs.V("cause", err.Error()))
			}
			projectSQLite.SetCodec(projectCodec)
		}
	}

	embedder, err := embedding.New(cfg.resolveEmbeddingProvider(), cfg.EmbeddingConfig)
	if err != nil {
		globalSQLite.Close()
		if projectSQLite != nil {
			projectSQLite.Close()
		}
		return nil, err
	}

	weights := cfg.RelevanceWeights
	if weights == (relevance.Weights{}) {
		weights = relevance.DefaultWeights()
	}

	compactCtx, compactCancel := context.WithCancel(context.Background())

	m := &Mesh{
		globalStore:     globalSQLite,
		globalPath:      globalPath,
		embedder:        embedder,
		engine:          relevance.New(weights),
		logger:          logger,
		compactInterval: cfg.resolveCompactInterval(),
		compactCtx:      compactCtx,
		compactCancel:   compactCancel,
	}
	if projectSQLite != nil {
		m.projectStore = projectSQLite
		m.projectPath = cfg.ProjectPath
		m.projectName = projectName
	}

	logger.Info("mesh initialised",
		slog.Bool("project_store", m.projectStore != nil),
		slog.String("global_path", globalPath),
		slog.String("embedding_provider", cfg.resolveEmbeddingProvider()))

	return m, nil
}

// ProjectPath returns the project database path, or "" if not configured.
func (m *Mesh) ProjectPath() string { return m.projectPath }

// GlobalPath returns the global database path.
func (m *Mesh) GlobalPath() string { return m.globalPath }

// Close releases both store connections and cancels any in-flight
// auto-compaction.
func (m *Mesh) Close() error {
	m.compactCancel()
	var firstErr error
	if m.projectStore != nil {
		if err := m.projectStore.Close(); err != nil {
			firstErr = err
		}
	}
	if err := m.globalStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// storeForScope resolves scope to its backing store. When allowNone is
// false and scope is project with no project store configured, it returns
// errs.NoProjectStore.
func (m *Mesh) storeForScope(scope model.Scope, allowNone bool) (store.Store, error) {
	if scope == model.ScopeGlobal {
		return m.globalStore, nil
	}
	if m.projectStore != nil {
		return m.projectStore, nil
	}
	if allowNone {
		return nil, nil
	}
	return nil, errs.Wrap(errs.NoProjectStore,
		"no project database configured; pass Config.ProjectPath or use scope=global")
}

// safeEmbed embeds text, degrading to an unavailable (nil) embedding
// instead of propagating an error — a temporary embedding failure must
// never fail remember/recall, per spec.md §4.2's "never raise" contract.
func (m *Mesh) safeEmbed(ctx context.Context, text string) embedding.Vector {
	vec, ok, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed, falling back to keyword search", slog.String("cause", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}
	return vec
}
