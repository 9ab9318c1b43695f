package query

import (
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// Entry is one predicate of a query: a boolean operator linking it to
// the entries before it, a condition, the field or index it applies
// to, and the condition's arguments.
type Entry struct {
	Op     model.OpType
	Cond   model.CondType
	Index  string
	Values []keyvalue.Value

	// IdxNo is filled by index binding: a dense index position,
	// IndexNotSet before binding, or IndexByJSONPath when the field
	// has no index.
	IdxNo int

	Distinct bool
}

// AggType selects an aggregation function.
type AggType int

// Aggregation functions.
const (
	AggSum AggType = iota
	AggAvg
	AggMin
	AggMax
	AggFacet
)

// String returns the aggregation name.
func (a AggType) String() string {
	switch a {
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggFacet:
		return "facet"
	default:
		return "unknown"
	}
}

// AggregateEntry requests one aggregate over a field of the accepted
// rows.
type AggregateEntry struct {
	Field string
	Type  AggType
}

// JoinCondition equates a field of the outer namespace with a field
// of the joined one.
type JoinCondition struct {
	LeftField  string
	Cond       model.CondType
	RightField string
}

// JoinedQuery is a sub-query attached to a main query with join
// semantics.
type JoinedQuery struct {
	Type model.JoinType
	// Query filters the joined namespace independently of the outer
	// row.
	Query *Query
	// On scopes the joined rows by the outer row.
	On []JoinCondition
}

// Query is a declarative selection over one namespace, possibly
// joined with or merged with others.
type Query struct {
	Namespace string
	Entries   []Entry

	SortBy          string
	SortDesc        bool
	ForcedSortOrder []keyvalue.Value

	// Start and Count paginate the result. Count 0 means unlimited.
	Start int
	Count int

	CalcTotal    model.TotalMode
	Aggregations []AggregateEntry
	SelectFilter []string

	Joined []JoinedQuery
	Merged []*Query

	// ReqMatchedOnce keeps the loop running only until the first
	// accepted row; join pre-result probes use it.
	ReqMatchedOnce bool
}

// New creates a query over a namespace.
func New(namespace string) *Query {
	return &Query{Namespace: namespace}
}

// Where appends an AND predicate.
func (q *Query) Where(field string, cond model.CondType, values ...any) *Query {
	return q.append(model.OpAnd, field, cond, values...)
}

// WhereValues appends an AND predicate with pre-built values.
func (q *Query) WhereValues(field string, cond model.CondType, values ...keyvalue.Value) *Query {
	q.Entries = append(q.Entries, Entry{
		Op: model.OpAnd, Cond: cond, Index: field, Values: values, IdxNo: model.IndexNotSet,
	})
	return q
}

// Or appends an OR predicate.
func (q *Query) Or(field string, cond model.CondType, values ...any) *Query {
	return q.append(model.OpOr, field, cond, values...)
}

// Not appends an AND NOT predicate.
func (q *Query) Not(field string, cond model.CondType, values ...any) *Query {
	return q.append(model.OpNot, field, cond, values...)
}

func (q *Query) append(op model.OpType, field string, cond model.CondType, values ...any) *Query {
	e := Entry{Op: op, Cond: cond, Index: field, IdxNo: model.IndexNotSet}
	for _, v := range values {
		kv, err := keyvalue.FromAny(v)
		if err == nil {
			e.Values = append(e.Values, kv)
		}
	}
	q.Entries = append(q.Entries, e)
	return q
}

// Match appends a full-text AND predicate.
func (q *Query) Match(field string, text string) *Query {
	return q.Where(field, model.CondEq, text)
}

// Distinct marks the first predicate on field (or adds an Any
// predicate) as distinct: only the first row per key is returned.
func (q *Query) Distinct(field string) *Query {
	for i := range q.Entries {
		if q.Entries[i].Index == field {
			q.Entries[i].Distinct = true
			return q
		}
	}
	q.Entries = append(q.Entries, Entry{
		Op: model.OpAnd, Cond: model.CondAny, Index: field, IdxNo: model.IndexNotSet, Distinct: true,
	})
	return q
}

// Sort sets the sort field and direction.
func (q *Query) Sort(field string, desc bool) *Query {
	q.SortBy = field
	q.SortDesc = desc
	return q
}

// ForceSortOrder pins the leading values of the sort field: rows
// whose sort value appears in the list come first, in list order.
func (q *Query) ForceSortOrder(values ...any) *Query {
	for _, v := range values {
		kv, err := keyvalue.FromAny(v)
		if err == nil {
			q.ForcedSortOrder = append(q.ForcedSortOrder, kv)
		}
	}
	return q
}

// Offset skips the first n accepted rows.
func (q *Query) Offset(n int) *Query {
	q.Start = n
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.Count = n
	return q
}

// ReqTotal requests an accurate total match count.
func (q *Query) ReqTotal() *Query {
	q.CalcTotal = model.AccurateTotal
	return q
}

// CachedTotal requests a total match count served from the query
// cache when possible.
func (q *Query) CachedTotal() *Query {
	q.CalcTotal = model.CachedTotal
	return q
}

// Aggregate requests an aggregation over a field.
func (q *Query) Aggregate(field string, typ AggType) *Query {
	q.Aggregations = append(q.Aggregations, AggregateEntry{Field: field, Type: typ})
	return q
}

// Select restricts the fields rendered from result rows.
func (q *Query) Select(fields ...string) *Query {
	q.SelectFilter = append(q.SelectFilter, fields...)
	return q
}

// Join attaches a sub-query with the given join semantics.
func (q *Query) Join(typ model.JoinType, sub *Query, on ...JoinCondition) *Query {
	q.Joined = append(q.Joined, JoinedQuery{Type: typ, Query: sub, On: on})
	return q
}

// InnerJoin attaches an inner join: outer rows must have a joined
// match.
func (q *Query) InnerJoin(sub *Query, on ...JoinCondition) *Query {
	return q.Join(model.JoinInner, sub, on...)
}

// LeftJoin attaches a left join: joined rows are collected without
// filtering the outer set.
func (q *Query) LeftJoin(sub *Query, on ...JoinCondition) *Query {
	return q.Join(model.JoinLeft, sub, on...)
}

// Merge appends another query's results after this query's.
func (q *Query) Merge(other *Query) *Query {
	q.Merged = append(q.Merged, other)
	return q
}

// On builds a join condition.
func On(leftField string, cond model.CondType, rightField string) JoinCondition {
	return JoinCondition{LeftField: leftField, Cond: cond, RightField: rightField}
}

// HasDistinct reports whether any entry is distinct.
func (q *Query) HasDistinct() bool {
	for _, e := range q.Entries {
		if e.Distinct {
			return true
		}
	}
	return false
}
