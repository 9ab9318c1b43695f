// Package model defines core types used throughout rexdb.
//
// # Identity Types
//
//   - IdType: Dense, namespace-local row identifier (int32)
//   - SortType: Position of a row inside a built sort order (uint32)
//   - Version: Monotonic per-row modification counter
//   - ItemRef: A query result entry (id, version, rank, namespace)
//
// # Query Algebra
//
//   - CondType: Comparison conditions (Eq, Lt, Le, Gt, Ge, Range, Set, ...)
//   - OpType: Boolean operators joining query entries (And, Or, Not)
//   - JoinType: Join modes (Inner, OrInner, Left, Merge)
//
// # Errors
//
// Error carries a numeric code so callers can classify failures
// (logic, query execution, parameters, conflicts) without string
// matching. Use model.NewError or the code helpers, and errors.As
// to recover the code.
package model
