// Package vector encodes text into normalized embeddings and searches them.
package vector

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when a backend returns vectors of an unexpected size
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Encoder maps texts to fixed-dimension L2-normalized vectors. Output for a
// text must not depend on which other texts share its batch.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 when only known after the first call
	Dimensions() int

	// Name identifies the encoder and model; it namespaces cache keys
	Name() string
}

// encodeBatched splits texts into fixed-size batches and concatenates the results
func encodeBatched(ctx context.Context, texts []string, batchSize int, fn func(ctx context.Context, batch []string) ([][]float32, error)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, errors.New("encoder returned wrong number of vectors")
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// SquaredL2 returns the squared Euclidean distance between a and b
func SquaredL2(a, b []float32) float32 {
	var d float32
	for i := range a {
		if i >= len(b) {
			break
		}
		x := a[i] - b[i]
		d += x * x
	}
	return d
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
