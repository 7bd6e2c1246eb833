package store

// FieldCodec wraps the two text-bearing columns (text, metadata_json) on
// their way to and from disk. The plaintext store uses Passthrough; the
// encryption layer (internal/encryption) supplies one that applies
// authenticated encryption. SQLiteStore never branches on which codec it
// holds — this is what keeps the store's method set identical whether or
// not encryption is enabled (see DESIGN.md on the dual-store asymmetry this
// avoids).
type FieldCodec interface {
	Encode(plaintext string) (string, error)
	Decode(stored string) (string, error)
}

// Passthrough is the no-op FieldCodec used when encryption is disabled.
type Passthrough struct{}

func (Passthrough) Encode(plaintext string) (string, error) { return plaintext, nil }
func (Passthrough) Decode(stored string) (string, error)    { return stored, nil }
