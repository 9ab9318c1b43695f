// Package index implements the secondary indexes of a namespace.
//
// Four kinds share one capability set: an unordered hash index, an
// ordered tree index with lazily built sort permutations, composite
// variants of both keyed by packed field tuples, and a BM25 full-text
// index treated by the planner as an opaque iterator provider.
//
// SelectKey evaluates one predicate against an index and returns
// posting lists, rank ranges in sort-order space, or comparators for
// conditions the index cannot answer from its keys.
package index
