package index

import (
	"fmt"

	"github.com/hupe1980/rexdb/idset"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// Kind identifies an index implementation.
type Kind int

// Index kinds.
const (
	KindHash Kind = iota
	KindTree
	KindFullText
	KindCompositeHash
	KindCompositeTree
)

// String returns the kind name used in index definitions.
func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindTree:
		return "tree"
	case KindFullText:
		return "text"
	case KindCompositeHash:
		return "composite_hash"
	case KindCompositeTree:
		return "composite_tree"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsComposite reports whether the kind keys by a packed field tuple.
func (k Kind) IsComposite() bool {
	return k == KindCompositeHash || k == KindCompositeTree
}

// IsOrdered reports whether the kind maintains key order and can
// answer range conditions and build sort permutations.
func (k Kind) IsOrdered() bool {
	return k == KindTree || k == KindCompositeTree
}

// Opts carries the per-index flags of an index definition.
type Opts struct {
	Unique  bool
	Array   bool
	Sparse  bool
	PK      bool
	Collate keyvalue.CollateMode
}

// SelectHint biases SelectKey toward a materialized posting list or a
// comparator when the planner already knows which shape the loop
// wants.
type SelectHint int

// Select hints.
const (
	HintNone SelectHint = iota
	// HintForceIdset demands materialized ids (distinct queries walk
	// and exclude key sets, which a comparator cannot do).
	HintForceIdset
	// HintForceComparator demands a comparator (a dominating
	// full-text predicate already enumerates candidates).
	HintForceComparator
)

// SingleKeyResult is one evaluated alternative of a predicate: either
// a posting list or a contiguous range [RangeBegin, RangeEnd) in the
// index's sort-order rank space.
type SingleKeyResult struct {
	IDs        *idset.IdSet
	IsRange    bool
	RangeBegin model.SortType
	RangeEnd   model.SortType
}

// SelectKeyResults is everything an index returns for one predicate.
type SelectKeyResults struct {
	Results     []SingleKeyResult
	Comparators []*Comparator
	// Ranks carries full-text relevance per id; nil for ordinary
	// indexes.
	Ranks map[model.IdType]int32
}

// MaxIterations estimates the work to drain the results: total ids
// across posting lists and rank ranges.
func (r *SelectKeyResults) MaxIterations() int {
	n := 0
	for _, res := range r.Results {
		if res.IsRange {
			n += int(res.RangeEnd - res.RangeBegin)
		} else if res.IDs != nil {
			n += res.IDs.Len()
		}
	}
	return n
}

// Index is the capability set shared by all index kinds.
//
// Upsert and Delete take keys already coerced to the index key type;
// the namespace extracts them from documents. SelectKey may be called
// concurrently under the namespace read lock; mutation only under the
// write lock.
type Index interface {
	Name() string
	Kind() Kind
	KeyType() keyvalue.Type
	Opts() Opts
	Fields() payload.FieldsSet

	// Size returns the number of distinct keys. The planner prefers
	// larger indexes when deducing a sort.
	Size() int

	Upsert(key keyvalue.Value, id model.IdType)
	Delete(key keyvalue.Value, id model.IdType)

	SelectKey(values []keyvalue.Value, cond model.CondType, sortID int, hint SelectHint) (*SelectKeyResults, error)

	// SortOrders returns the rank permutation (rank per id, free
	// slots at SortIdUnexists) and its inverse, or nils when the
	// index is unordered or orders have not been built.
	SortOrders() (ranks []model.SortType, sortedIDs []model.IdType)

	// BuildSortOrders rebuilds the permutation for ids in [0,
	// totalItems) and bumps SortID. No-op for unordered kinds.
	BuildSortOrders(totalItems int)

	// SortID is the sort-order epoch: 0 before the first build,
	// bumped on every rebuild. Rank ranges are only valid against
	// the epoch they were produced under.
	SortID() int

	// ClearCache drops the index's memoized posting lists.
	ClearCache()

	// MemBytes reports the approximate heap footprint for stats.
	MemBytes() int
}

// KeysOf extracts the index key values of a document: packed tuples
// for composite kinds, per-field scalars otherwise. Array fields
// contribute one key per element.
func KeysOf(idx Index, pt *payload.Type, v *payload.Value) []keyvalue.Value {
	if idx.Kind().IsComposite() {
		return []keyvalue.Value{payload.PackFromValue(pt, idx.Fields(), v)}
	}
	fields := idx.Fields().Fields()
	if len(fields) == 0 {
		return nil
	}
	vals := v.Get(fields[0])
	if len(vals) == 0 {
		return nil
	}
	out := make([]keyvalue.Value, 0, len(vals))
	for _, kv := range vals {
		conv, err := kv.Convert(idx.KeyType())
		if err != nil {
			continue
		}
		out = append(out, conv)
	}
	return out
}
