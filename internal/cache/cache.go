// Package cache stores decoded photo analyses keyed by content identity so
// repeated runs skip the network call for unchanged files.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"photo-curator/internal/ai"
)

// DefaultTTL is how long a cached analysis stays valid.
const DefaultTTL = 24 * time.Hour

// Store is the analysis cache consulted before any network call. Entries
// older than the store's TTL are treated as absent. Implementations must be
// safe for concurrent use; writes are atomic per key.
type Store interface {
	Get(ctx context.Context, key string) (*ai.ImageAnalysis, bool, error)
	Put(ctx context.Context, key string, analysis *ai.ImageAnalysis) error
	Close() error
}

// Key derives a photo's identity key from its path, modification time and
// size, so edits and replacements invalidate the cached analysis.
func Key(path string, modTime time.Time, size int64) string {
	sum := md5.Sum(fmt.Appendf(nil, "%s_%d_%d", path, modTime.UnixNano(), size))
	return hex.EncodeToString(sum[:])
}
