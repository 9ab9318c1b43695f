package model

import (
	"fmt"
)

// IdType is a dense, namespace-local identifier for a row.
// Ids of deleted rows are recycled on subsequent inserts.
type IdType int32

// SortType is the position of a row inside a built sort order.
type SortType uint32

// Version is a monotonic per-row modification counter. It lets
// merged result sets prefer the freshest copy of a row.
type Version int64

// Sentinel ranks for rows not present in a sort order.
const (
	// SortIdUnexists marks a free (deleted) slot in a sort order.
	SortIdUnexists = SortType(0xFFFFFFFF)
	// SortIdUnfilled marks a row inserted after the order was built.
	SortIdUnfilled = SortType(0xFFFFFFFE)
)

// Sentinel index numbers used while a query entry is not yet bound
// to a physical index.
const (
	// IndexNotSet means the entry still names a field, not an index.
	IndexNotSet = -1
	// IndexByJSONPath means the field has no index and is evaluated
	// by walking the stored payload.
	IndexByJSONPath = -2
)

// ItemRef is one entry of a query result set.
type ItemRef struct {
	ID      IdType
	Version Version
	// Proc is the relevance rank for full-text matches, 0 otherwise.
	Proc int32
	// NsID distinguishes rows of merged multi-namespace queries.
	NsID int
}

// String returns a string representation of the ItemRef.
func (r ItemRef) String() string {
	return fmt.Sprintf("ItemRef(%d:v%d)", r.ID, r.Version)
}

// CondType is a comparison condition of a query entry.
type CondType int

// Comparison conditions.
const (
	CondAny CondType = iota
	CondEq
	CondLt
	CondLe
	CondGt
	CondGe
	CondRange
	CondSet
	CondAllSet
	CondEmpty
)

// String returns the condition name as used in query DSLs.
func (c CondType) String() string {
	switch c {
	case CondAny:
		return "ANY"
	case CondEq:
		return "="
	case CondLt:
		return "<"
	case CondLe:
		return "<="
	case CondGt:
		return ">"
	case CondGe:
		return ">="
	case CondRange:
		return "RANGE"
	case CondSet:
		return "IN"
	case CondAllSet:
		return "ALLSET"
	case CondEmpty:
		return "EMPTY"
	default:
		return fmt.Sprintf("CondType(%d)", int(c))
	}
}

// IsOrdered reports whether the condition selects a contiguous key
// range and therefore benefits from an ordered index.
func (c CondType) IsOrdered() bool {
	switch c {
	case CondLt, CondLe, CondGt, CondGe, CondRange:
		return true
	default:
		return false
	}
}

// OpType is the boolean operator joining a query entry to the
// entries before it.
type OpType int

// Boolean operators.
const (
	OpAnd OpType = iota
	OpOr
	OpNot
)

// String returns the operator name.
func (o OpType) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"
	default:
		return fmt.Sprintf("OpType(%d)", int(o))
	}
}

// JoinType selects how a joined sub-query combines with the main
// query.
type JoinType int

// Join modes.
const (
	// JoinInner requires a joined match (AND semantics).
	JoinInner JoinType = iota
	// JoinOrInner accepts a joined match as an alternative (OR).
	JoinOrInner
	// JoinLeft attaches joined rows without filtering the main set.
	JoinLeft
	// JoinMerge appends the results of a second query.
	JoinMerge
)

// String returns the join mode name.
func (j JoinType) String() string {
	switch j {
	case JoinInner:
		return "INNER JOIN"
	case JoinOrInner:
		return "OR INNER JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinMerge:
		return "MERGE"
	default:
		return fmt.Sprintf("JoinType(%d)", int(j))
	}
}

// TotalMode controls how the total match count of a paginated query
// is produced.
type TotalMode int

// Total count modes.
const (
	// NoTotal skips total counting.
	NoTotal TotalMode = iota
	// CachedTotal serves the total from the query cache when the
	// namespace has not changed since it was computed.
	CachedTotal
	// AccurateTotal always walks the full result set.
	AccurateTotal
)

// SortDir is the direction of a sort.
type SortDir int

// Sort directions.
const (
	SortAsc SortDir = iota
	SortDesc
)
