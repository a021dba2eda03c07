package vector

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/ppiankov/paperproof/internal/cache"
)

// CachedEncoder memoizes another encoder's vectors by text
type CachedEncoder struct {
	inner Encoder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEncoder wraps inner. A nil cache disables memoization.
func NewCachedEncoder(inner Encoder, c cache.Cache, ttl time.Duration) Encoder {
	if c == nil {
		return inner
	}
	return &CachedEncoder{inner: inner, cache: c, ttl: ttl}
}

// Name returns the wrapped encoder's name
func (e *CachedEncoder) Name() string {
	return e.inner.Name()
}

// Dimensions returns the wrapped encoder's dimensions
func (e *CachedEncoder) Dimensions() int {
	return e.inner.Dimensions()
}

// Encode returns cached vectors and encodes only the misses
func (e *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if raw, ok := e.cache.Get(cache.Key(e.inner.Name(), t)); ok {
			if v, ok := decodeVector(raw); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Encode(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		// Cache write failures only cost a recomputation
		_ = e.cache.Set(cache.Key(e.inner.Name(), missing[j]), encodeVector(v), e.ttl)
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
