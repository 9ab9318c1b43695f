// Package cache implements the byte-budgeted LRU caches of the query
// core: materialized posting lists per predicate (IdSetCache) and
// total match counts per query fingerprint (QueryCache).
//
// Both caches admit lazily: a key must be requested more than once
// before its value is stored, so one-shot scans cannot churn hot
// entries out.
package cache
