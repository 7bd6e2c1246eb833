package mesh

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mmesh/memorymesh/internal/relevance"
)

// projectMarkers are checked, in order, when walking up from a starting
// directory to find a project root. Ported from spec.md §6's detection
// order.
var projectMarkers = []string{
	".git", "pyproject.toml", "Cargo.toml", "go.mod", "package.json", ".hg", ".memorymesh",
}

const defaultCompactInterval = 50

// Config configures a Mesh. Every field is optional; the zero value of
// Config builds a global-only, unencrypted, local-embedder mesh with the
// default relevance weights and a 50-write auto-compaction interval,
// mirroring original_source/core.py's MemoryMesh(__init__) defaults.
type Config struct {
	// ProjectPath is the project database file path. Empty disables the
	// project store — project-scope operations then fail with
	// errs.NoProjectStore.
	ProjectPath string
	// GlobalPath overrides the default global database path
	// (~/.memorymesh/global.db).
	GlobalPath string

	// EmbeddingProvider names a registered embedding.Factory. Empty
	// defaults to "local".
	EmbeddingProvider string
	// EmbeddingConfig is passed through to the named provider's factory.
	EmbeddingConfig map[string]string

	// EncryptionPassphrase, when non-empty, enables at-rest encryption of
	// the text and metadata_json columns on both stores.
	EncryptionPassphrase string

	// RelevanceWeights overrides the default scoring weights. The zero
	// value is treated as "use relevance.DefaultWeights()".
	RelevanceWeights relevance.Weights

	// CompactInterval is the number of remember() calls between automatic
	// compaction passes. nil means "use the default of 50"; a pointer to
	// 0 disables auto-compaction, matching spec.md §6's tri-state option.
	CompactInterval *int

	// Logger receives all structured log output. nil uses
	// observability.Default().
	Logger *slog.Logger
}

func (c Config) resolveGlobalPath() (string, error) {
	if c.GlobalPath != "" {
		return c.GlobalPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".memorymesh", "global.db"), nil
}

func (c Config) resolveCompactInterval() int {
	if c.CompactInterval == nil {
		return defaultCompactInterval
	}
	if *c.CompactInterval < 0 {
		return 0
	}
	return *c.CompactInterval
}

func (c Config) resolveEmbeddingProvider() string {
	if c.EmbeddingProvider == "" {
		return "local"
	}
	return c.EmbeddingProvider
}

// FindProjectRoot walks up from startDir looking for any of the markers
// spec.md §6 names (.git, pyproject.toml, Cargo.toml, go.mod, package.json,
// .hg, .memorymesh). It returns the first directory containing a marker, or
// an error listing every directory that was tried.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	tried := []string{}
	for {
		tried = append(tried, dir)
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no project root found; tried %v for markers %v", tried, projectMarkers)
}

// projectNameFromPath mirrors original_source/core.py's project_name
// derivation: the project database lives at <root>/.memorymesh/memories.db,
// so the project name is the basename two directories up from the db file.
func projectNameFromPath(dbPath string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(dbPath)))
}
