// Package namespace implements the document collections of the
// database and their query execution core.
//
// A Namespace owns the dense item vector with its free list, the
// secondary indexes, the tagsmatcher, the commit state machine that
// lazily materializes sort permutations, the per-namespace caches and
// the storage binding. Its selecter rewrites query predicates, picks
// the cheapest access path, runs the merged boolean iterators, applies
// joins, sorts, paginates and aggregates.
//
// Concurrency follows a reader/writer discipline: queries run to
// completion under the namespace read lock, writes are exclusive, and
// commits upgrade the query's read lock for their duration. Lock
// order is namespace lock before cache lock; across joined namespaces
// outer before inner by name.
package namespace
