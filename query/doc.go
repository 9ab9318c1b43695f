// Package query declares the query description consumed by the
// executor: predicate entries with boolean operators, sorting,
// pagination, aggregation requests, joined and merged sub-queries.
//
// Queries are built fluently and are plain data; binding entries to
// indexes, rewriting and planning happen inside the namespace.
package query
