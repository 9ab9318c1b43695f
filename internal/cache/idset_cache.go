package cache

import (
	"github.com/hupe1980/rexdb/idset"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// IdSetKey identifies one evaluated predicate: its condition, the
// sort-order epoch it was materialized under, and the encoded value
// list. A SortID bump invalidates all range results built in the old
// rank space without touching the rest of the cache.
type IdSetKey struct {
	Cond   model.CondType
	SortID int
	Values string
}

// MakeIdSetKey builds the cache key for a predicate over values.
func MakeIdSetKey(cond model.CondType, sortID int, values []keyvalue.Value) IdSetKey {
	buf := make([]byte, 0, 16*len(values))
	for _, v := range values {
		buf = v.AppendBinary(buf)
	}
	return IdSetKey{Cond: cond, SortID: sortID, Values: string(buf)}
}

// IdSetCache memoizes materialized posting lists per predicate.
type IdSetCache struct {
	lru *LRU[IdSetKey, *idset.IdSet]
}

// NewIdSetCache creates an IdSetCache bounded to maxSize bytes.
func NewIdSetCache(maxSize int64) *IdSetCache {
	return &IdSetCache{
		lru: NewLRU[IdSetKey](maxSize, DefaultAdmissionHits, func(s *idset.IdSet) int {
			return s.SizeInBytes()
		}),
	}
}

// Get looks up the posting list for key.
func (c *IdSetCache) Get(key IdSetKey) (*idset.IdSet, bool, bool) {
	return c.lru.Get(key)
}

// Put stores the posting list for key.
func (c *IdSetCache) Put(key IdSetKey, ids *idset.IdSet) {
	c.lru.Put(key, ids)
}

// Clear drops everything; called on every write to the namespace.
func (c *IdSetCache) Clear() { c.lru.Clear() }

// Len returns the tracked key count.
func (c *IdSetCache) Len() int { return c.lru.Len() }

// SizeBytes returns the charged byte total.
func (c *IdSetCache) SizeBytes() int64 { return c.lru.SizeBytes() }

// Stats returns cumulative hit and miss counters.
func (c *IdSetCache) Stats() (hits, misses int64) { return c.lru.Stats() }
