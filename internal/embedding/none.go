package embedding

import "context"

// NoneEmbedder never produces a vector. Every stored memory falls back to
// keyword search; this is the default when no provider is configured,
// mirroring original_source/embeddings.py's NoopEmbedding.
type NoneEmbedder struct{}

func (NoneEmbedder) Embed(ctx context.Context, text string) (Vector, bool, error) {
	return nil, false, nil
}

func (NoneEmbedder) Dims() int { return 0 }
