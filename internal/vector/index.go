package vector

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrIndexNotBuilt is returned by Search before Build has been called
var ErrIndexNotBuilt = errors.New("index not built")

// Hit is one search result
type Hit struct {
	Index    int     // Position in the texts passed to Build
	Distance float32 // Squared Euclidean distance
}

// Index is an exact nearest-neighbor index over encoded texts. After Build it
// is read-only and safe for concurrent Search.
type Index struct {
	encoder Encoder

	mu      sync.RWMutex
	built   bool
	texts   []string
	vectors [][]float32
}

// NewIndex creates an index that encodes with encoder
func NewIndex(encoder Encoder) *Index {
	return &Index{encoder: encoder}
}

// Build encodes and stores texts, replacing any previous contents. An empty
// collection produces a built but empty index.
func (x *Index) Build(ctx context.Context, texts []string) error {
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		vecs, err = x.encoder.Encode(ctx, texts)
		if err != nil {
			return err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.texts = append([]string(nil), texts...)
	x.vectors = vecs
	x.built = true
	return nil
}

// Len returns the number of stored vectors
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Text returns the stored text at i
func (x *Index) Text(i int) string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.texts) {
		return ""
	}
	return x.texts[i]
}

// Search encodes query and returns up to k nearest stored texts, closest first
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	x.mu.RLock()
	built := x.built
	x.mu.RUnlock()
	if !built {
		return nil, ErrIndexNotBuilt
	}

	vecs, err := x.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return x.SearchVector(vecs[0], k)
}

// SearchVector returns up to k nearest stored vectors to q
func (x *Index) SearchVector(q []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.built {
		return nil, ErrIndexNotBuilt
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Index: i, Distance: SquaredL2(q, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if k < 0 {
		k = 0
	}
	return hits[:min(k, len(hits))], nil
}
