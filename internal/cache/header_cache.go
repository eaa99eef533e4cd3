package cache

import (
	"strings"
	"sync"
	"time"
)

// Fingerprint identifies one version of a file. A cached header length is
// only served while the file still matches the fingerprint it was stored
// with.
type Fingerprint struct {
	Ino     uint64
	Size    int64
	MtimeNs int64
}

// HeaderCache caches container header lengths by relative path with
// TTL-based expiration.
//
// Thread-safe: Uses RWMutex for concurrent access.
type HeaderCache struct {
	mu      sync.RWMutex
	entries map[string]*headerEntry
	ttl     time.Duration
	maxSize int
	hits    uint64
	misses  uint64
}

type headerEntry struct {
	length  int64
	fp      Fingerprint
	expires time.Time
}

// NewHeaderCache creates a new header length cache.
// ttl: Time-to-live for cached entries (use 0 for no expiration)
// maxSize: Maximum number of entries (use 0 for unlimited)
func NewHeaderCache(ttl time.Duration, maxSize int) *HeaderCache {
	return &HeaderCache{
		entries: make(map[string]*headerEntry, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the header length stored for path if the entry is live and
// fp still matches. Always misses when caching is disabled (C4GHFS_CACHE=0).
func (c *HeaderCache) Get(path string, fp Fingerprint) (int64, bool) {
	if Disabled {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok || entry.fp != fp || (c.ttl > 0 && time.Now().After(entry.expires)) {
		c.misses++
		return 0, false
	}
	c.hits++
	return entry.length, true
}

// Set stores the header length for path.
// No-op if caching is disabled (C4GHFS_CACHE=0) or length is not positive.
func (c *HeaderCache) Set(path string, fp Fingerprint, length int64) {
	if Disabled || length <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		// At capacity only existing paths are refreshed
		if _, exists := c.entries[path]; !exists {
			return
		}
	}

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.entries[path] = &headerEntry{
		length:  length,
		fp:      fp,
		expires: expires,
	}
}

// Invalidate clears all entries from the cache.
func (c *HeaderCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[string]*headerEntry, 256)
	}
}

// InvalidatePath removes a specific path from the cache.
func (c *HeaderCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
}

// InvalidatePrefix removes all paths under the given directory.
func (c *HeaderCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" {
		c.entries = make(map[string]*headerEntry, 256)
		return
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	for path := range c.entries {
		if strings.HasPrefix(path, prefix) {
			delete(c.entries, path)
		}
	}
}

// Size returns the current number of entries in the cache.
func (c *HeaderCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HeaderCacheStats holds cache statistics.
type HeaderCacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
	Hits    uint64
	Misses  uint64
}

// Stats returns current cache statistics.
func (c *HeaderCache) Stats() HeaderCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return HeaderCacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

var _ Invalidator = (*HeaderCache)(nil)
