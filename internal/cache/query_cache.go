package cache

// QueryCache memoizes total match counts keyed by a structural query
// fingerprint. The fingerprint excludes pagination and aggregation,
// so paging through a result set reuses one entry.
type QueryCache struct {
	lru *LRU[uint64, int]
}

// NewQueryCache creates a QueryCache bounded to maxSize bytes.
func NewQueryCache(maxSize int64) *QueryCache {
	return &QueryCache{
		lru: NewLRU[uint64](maxSize, DefaultAdmissionHits, func(int) int { return 8 }),
	}
}

// GetTotal looks up the cached total for a query fingerprint.
func (c *QueryCache) GetTotal(fingerprint uint64) (total int, found, admitted bool) {
	return c.lru.Get(fingerprint)
}

// PutTotal stores the computed total for a query fingerprint.
func (c *QueryCache) PutTotal(fingerprint uint64, total int) {
	c.lru.Put(fingerprint, total)
}

// Clear drops everything; called on every write to the namespace.
func (c *QueryCache) Clear() { c.lru.Clear() }

// Len returns the tracked key count.
func (c *QueryCache) Len() int { return c.lru.Len() }

// SizeBytes returns the charged byte total.
func (c *QueryCache) SizeBytes() int64 { return c.lru.SizeBytes() }

// Stats returns cumulative hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) { return c.lru.Stats() }
