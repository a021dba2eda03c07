package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEncoder is an offline encoder based on feature hashing. Each token is
// embedded as the signed hash of the word and its character trigrams; token
// embeddings are mean-pooled and L2-normalized. It needs no network and is
// deterministic, which makes it the default for tests and air-gapped runs.
type HashEncoder struct {
	dims      int
	batchSize int
}

// NewHashEncoder creates a hashing encoder with the given dimensionality
func NewHashEncoder(dims, batchSize int) *HashEncoder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEncoder{dims: dims, batchSize: batchSize}
}

// Name returns the encoder name
func (e *HashEncoder) Name() string {
	return fmt.Sprintf("hash-%d", e.dims)
}

// Dimensions returns the vector size
func (e *HashEncoder) Dimensions() int {
	return e.dims
}

// Encode embeds texts
func (e *HashEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return encodeBatched(ctx, texts, e.batchSize, func(_ context.Context, batch []string) ([][]float32, error) {
		tokens := make([][]string, len(batch))
		maxLen := 0
		for i, t := range batch {
			tokens[i] = tokenize(t)
			maxLen = max(maxLen, len(tokens[i]))
		}

		out := make([][]float32, len(batch))
		for i := range batch {
			out[i] = e.pool(tokens[i], maxLen)
		}
		return out, nil
	})
}

// pool mean-pools token embeddings over a batch padded to maxLen. Padding
// positions carry a zero attention mask and do not contribute.
func (e *HashEncoder) pool(tokens []string, maxLen int) []float32 {
	vec := make([]float32, e.dims)
	var maskSum float32
	for pos := 0; pos < maxLen; pos++ {
		if pos >= len(tokens) {
			continue
		}
		maskSum++
		e.addToken(vec, tokens[pos])
	}
	if maskSum > 0 {
		for i := range vec {
			vec[i] /= maskSum
		}
	}
	return Normalize(vec)
}

func (e *HashEncoder) addToken(vec []float32, tok string) {
	e.addFeature(vec, "w:"+tok, 1)
	padded := []rune("#" + tok + "#")
	for i := 0; i+3 <= len(padded); i++ {
		e.addFeature(vec, "c:"+string(padded[i:i+3]), 0.5)
	}
}

func (e *HashEncoder) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize splits on anything but letters, digits and inner dots, so that
// numbers like 0.0001 stay whole
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "."); f != "" {
			out = append(out, f)
		}
	}
	return out
}
