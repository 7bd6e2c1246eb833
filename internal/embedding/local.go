package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder computes a deterministic, dependency-free embedding using
// the hashing trick: each token is hashed into one of dims buckets and its
// sign-weighted count accumulated, then the result is L2-normalised. This
// stands in for original_source/embeddings.py's LocalEmbedding, which leans
// on sentence-transformers — a dependency with no Go equivalent in this
// module's stack. See DESIGN.md for why this component is stdlib-only.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder returns a LocalEmbedder producing vectors of the given
// dimensionality.
func NewLocalEmbedder(dims int) LocalEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return LocalEmbedder{dims: dims}
}

func (e LocalEmbedder) Dims() int { return e.dims }

func (e LocalEmbedder) Embed(ctx context.Context, text string) (Vector, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil, false, nil
	}

	v := make([]float64, e.dims)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dims))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		v[bucket] += sign
	}

	var norm float64
	for _, f := range v {
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, false, nil
	}

	out := make(Vector, e.dims)
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out, true, nil
}
