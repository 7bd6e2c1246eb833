// Package errs defines the MemoryMesh error taxonomy.
//
// Every error a caller can observe from the public API is, or wraps, one of
// the sentinels below. Internal code wraps a sentinel with goerr.Wrap to
// attach context; callers match with errors.Is.
package errs

import "github.com/m-mizutani/goerr/v2"

var (
	// InvalidArgument marks malformed input: empty text, oversized text or
	// metadata, a metadata-filter key that fails the identifier regex, a
	// bad time range.
	InvalidArgument = goerr.New("invalid argument")

	// NoProjectStore marks an operation that requires project scope when no
	// project store is configured.
	NoProjectStore = goerr.New("no project store configured")

	// NotFound marks a lookup by id that did not match any row.
	NotFound = goerr.New("memory not found")

	// CapacityExceeded marks an insert that would exceed a store's row cap.
	CapacityExceeded = goerr.New("store capacity exceeded")

	// SchemaMismatch marks a database stamped at a schema version newer
	// than this build of the engine understands.
	SchemaMismatch = goerr.New("schema version newer than supported")

	// EncryptionError marks a wrong passphrase, a missing salt record, or a
	// corrupted encrypted field (authentication tag mismatch).
	EncryptionError = goerr.New("encryption error")

	// IoError marks an underlying storage or filesystem failure.
	IoError = goerr.New("storage io error")

	// Cancelled marks an operation aborted via Close or an explicit
	// cancellation signal.
	Cancelled = goerr.New("operation cancelled")
)

// Wrap attaches a message and structured fields to a sentinel error while
// keeping it matchable with errors.Is(err, sentinel).
func Wrap(sentinel error, msg string, kv ...goerr.Option) error {
	return goerr.Wrap(sentinel, msg, kv...)
}

// V is a shorthand re-export so call sites only need to import this package.
func V(key string, value any) goerr.Option {
	return goerr.V(key, value)
}
