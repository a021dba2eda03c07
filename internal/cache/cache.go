// Package cache stores computed embeddings so repeated runs over the same
// paper do not pay for encoding twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a cache key from a namespace (typically the encoder name) and
// the cached text
func Key(namespace, text string) string {
	hash := sha256.Sum256([]byte(namespace + "\x00" + text))
	return "paperproof:v1:" + hex.EncodeToString(hash[:])
}
