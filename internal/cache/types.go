package cache

import (
	"errors"
	"time"

	"github.com/dgnsrekt/narrate/tts"
)

// IndexFile is the name of the per-directory index.
const IndexFile = "cache.json"

// Common errors for cache operations
var (
	// ErrCacheCorrupted is returned when an index cannot be parsed
	ErrCacheCorrupted = errors.New("cache index corrupted")

	// ErrUnsafeArchivePath is returned for archive members escaping the target directory
	ErrUnsafeArchivePath = errors.New("archive entry escapes cache directory")
)

// CacheStats holds cache lookup counters.
type CacheStats struct {
	Hits      int64 // Number of cache hits
	Misses    int64 // Number of cache misses
	ItemCount int64 // Number of entries across loaded directories
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Record is an index entry as reported by List.
type Record struct {
	Key string
	tts.CacheEntry

	AudioPath string    // Absolute or cache-relative path resolved against the directory
	Size      int64     // Audio file size in bytes, 0 when missing
	ModTime   time.Time // Audio file modification time
	Missing   bool      // Audio file is gone; Get treats the entry as a miss
}
