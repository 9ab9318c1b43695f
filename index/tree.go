package index

import (
	"sort"

	"github.com/hupe1980/rexdb/idset"
	cache "github.com/hupe1980/rexdb/internal/cache"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// TreeIndex is an ordered index: keys are kept sorted under the
// collate mode, range conditions walk a contiguous key run, and a
// lazily built sort permutation lets the planner emit range results
// directly in rank space.
type TreeIndex struct {
	base

	// sortedKeys mirrors the posting map keys in collate order.
	sortedKeys []keyvalue.Value

	// Sort permutation, valid while built is set. keyRanks[i] is the
	// first rank of sortedKeys[i]; keyRanks has one extra trailing
	// entry holding the total.
	ranks     []model.SortType
	sortedIDs []model.IdType
	keyRanks  []int
	sortID    int
	built     bool
}

// NewTree creates an ordered index over a single field.
func NewTree(name string, keyType keyvalue.Type, opts Opts, fields payload.FieldsSet) *TreeIndex {
	return &TreeIndex{base: newBase(name, KindTree, keyType, opts, fields)}
}

// NewCompositeTree creates an ordered index keyed by a packed field
// tuple; packed tuples order bytewise.
func NewCompositeTree(name string, opts Opts, fields payload.FieldsSet) *TreeIndex {
	return &TreeIndex{base: newBase(name, KindCompositeTree, keyvalue.TypeComposite, opts, fields)}
}

// Upsert adds id to the posting list of key, registering a new key in
// sorted position. Any mutation invalidates the sort permutation.
func (t *TreeIndex) Upsert(key keyvalue.Value, id model.IdType) {
	enc := t.encodeKey(key)
	s, ok := t.postings[enc]
	if !ok {
		s = idset.New()
		t.postings[enc] = s
		pos := t.lowerBound(key)
		t.sortedKeys = append(t.sortedKeys, keyvalue.Value{})
		copy(t.sortedKeys[pos+1:], t.sortedKeys[pos:])
		t.sortedKeys[pos] = key
	}
	s.Add(id)
	t.built = false
}

// Delete removes id from the posting list of key.
func (t *TreeIndex) Delete(key keyvalue.Value, id model.IdType) {
	enc := t.encodeKey(key)
	s, ok := t.postings[enc]
	if !ok {
		return
	}
	s.Remove(id)
	if s.IsEmpty() {
		delete(t.postings, enc)
		pos := t.lowerBound(key)
		if pos < len(t.sortedKeys) && t.sortedKeys[pos].Equal(key, t.opts.Collate) {
			t.sortedKeys = append(t.sortedKeys[:pos], t.sortedKeys[pos+1:]...)
		}
	}
	t.built = false
}

// lowerBound returns the first key position >= v.
func (t *TreeIndex) lowerBound(v keyvalue.Value) int {
	return sort.Search(len(t.sortedKeys), func(i int) bool {
		return t.sortedKeys[i].Compare(v, t.opts.Collate) >= 0
	})
}

// upperBound returns the first key position > v.
func (t *TreeIndex) upperBound(v keyvalue.Value) int {
	return sort.Search(len(t.sortedKeys), func(i int) bool {
		return t.sortedKeys[i].Compare(v, t.opts.Collate) > 0
	})
}

func (t *TreeIndex) keyRange(cond model.CondType, values []keyvalue.Value) (int, int, error) {
	if len(values) == 0 || (cond == model.CondRange && len(values) < 2) {
		return 0, 0, model.ErrQueryExec("condition %s on index %q requires a value", cond, t.name)
	}
	switch cond {
	case model.CondLt:
		return 0, t.lowerBound(values[0]), nil
	case model.CondLe:
		return 0, t.upperBound(values[0]), nil
	case model.CondGt:
		return t.upperBound(values[0]), len(t.sortedKeys), nil
	case model.CondGe:
		return t.lowerBound(values[0]), len(t.sortedKeys), nil
	case model.CondRange:
		return t.lowerBound(values[0]), t.upperBound(values[1]), nil
	default:
		return 0, 0, model.ErrQueryExec("condition %s is not a range", cond)
	}
}

// SelectKey evaluates a predicate. Range conditions return rank-space
// ranges when the caller runs under the index's current sort epoch,
// and merged posting lists otherwise.
func (t *TreeIndex) SelectKey(values []keyvalue.Value, cond model.CondType, sortID int, hint SelectHint) (*SelectKeyResults, error) {
	if hint == HintForceComparator {
		return t.comparator(cond, values)
	}
	switch cond {
	case model.CondEq, model.CondSet, model.CondAny:
		return t.selectEqSet(values, cond, hint)
	case model.CondLt, model.CondLe, model.CondGt, model.CondGe, model.CondRange:
	default:
		return t.comparator(cond, values)
	}

	lo, hi, err := t.keyRange(cond, values)
	if err != nil {
		return nil, err
	}
	res := &SelectKeyResults{}
	if lo >= hi {
		return res, nil
	}

	if t.built && sortID != 0 && sortID == t.sortID && hint != HintForceIdset {
		res.Results = append(res.Results, SingleKeyResult{
			IsRange:    true,
			RangeBegin: model.SortType(t.keyRanks[lo]),
			RangeEnd:   model.SortType(t.keyRanks[hi]),
		})
		return res, nil
	}

	if hint == HintForceIdset {
		for i := lo; i < hi; i++ {
			if s, ok := t.posting(t.sortedKeys[i]); ok {
				res.Results = append(res.Results, SingleKeyResult{IDs: s})
			}
		}
		return res, nil
	}

	cacheKey := cache.MakeIdSetKey(cond, t.sortID, values)
	merged, found, admitted := t.cache.Get(cacheKey)
	if found {
		res.Results = append(res.Results, SingleKeyResult{IDs: merged})
		return res, nil
	}
	merged = idset.New()
	for i := lo; i < hi; i++ {
		if s, ok := t.posting(t.sortedKeys[i]); ok {
			merged.Or(s)
		}
	}
	if admitted {
		t.cache.Put(cacheKey, merged)
	}
	res.Results = append(res.Results, SingleKeyResult{IDs: merged})
	return res, nil
}

// BuildSortOrders rebuilds the sort permutation over ids in
// [0, totalItems): a stable sort of indexed ids by key, ids ascending
// within a key. Unindexed and free slots map to SortIdUnexists.
func (t *TreeIndex) BuildSortOrders(totalItems int) {
	t.ranks = make([]model.SortType, totalItems)
	for i := range t.ranks {
		t.ranks[i] = model.SortIdUnexists
	}
	t.sortedIDs = t.sortedIDs[:0]
	t.keyRanks = make([]int, len(t.sortedKeys)+1)

	pos := 0
	for i, k := range t.sortedKeys {
		t.keyRanks[i] = pos
		s, ok := t.posting(k)
		if !ok {
			continue
		}
		for it := s.Iterator(); it.HasNext(); {
			id := it.Next()
			if int(id) < totalItems {
				t.ranks[id] = model.SortType(pos)
				t.sortedIDs = append(t.sortedIDs, id)
				pos++
			}
		}
	}
	t.keyRanks[len(t.sortedKeys)] = pos
	t.sortID++
	t.built = true
}

// SortOrders returns the rank permutation and its inverse while they
// are current.
func (t *TreeIndex) SortOrders() ([]model.SortType, []model.IdType) {
	if !t.built {
		return nil, nil
	}
	return t.ranks, t.sortedIDs
}

// SortID returns the sort-order epoch.
func (t *TreeIndex) SortID() int {
	if !t.built {
		return 0
	}
	return t.sortID
}
