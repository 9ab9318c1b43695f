package index

import (
	"github.com/hupe1980/rexdb/idset"
	cache "github.com/hupe1980/rexdb/internal/cache"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// idSetCacheSize bounds each index's memoized posting lists.
const idSetCacheSize = 8 << 20

// base carries the state shared by hash and tree indexes.
type base struct {
	name     string
	kind     Kind
	keyType  keyvalue.Type
	opts     Opts
	fields   payload.FieldsSet
	postings map[string]*idset.IdSet
	cache    *cache.IdSetCache
}

func newBase(name string, kind Kind, keyType keyvalue.Type, opts Opts, fields payload.FieldsSet) base {
	return base{
		name:     name,
		kind:     kind,
		keyType:  keyType,
		opts:     opts,
		fields:   fields,
		postings: make(map[string]*idset.IdSet),
		cache:    cache.NewIdSetCache(idSetCacheSize),
	}
}

func (b *base) Name() string              { return b.name }
func (b *base) Kind() Kind                { return b.kind }
func (b *base) KeyType() keyvalue.Type    { return b.keyType }
func (b *base) Opts() Opts                { return b.opts }
func (b *base) Fields() payload.FieldsSet { return b.fields }
func (b *base) Size() int                 { return len(b.postings) }
func (b *base) ClearCache()               { b.cache.Clear() }

func (b *base) encodeKey(v keyvalue.Value) string {
	if v.Type() == keyvalue.TypeString {
		return "s" + keyvalue.CollateKey(v.Text(), b.opts.Collate)
	}
	return string(v.AppendBinary(nil))
}

func (b *base) posting(v keyvalue.Value) (*idset.IdSet, bool) {
	s, ok := b.postings[b.encodeKey(v)]
	return s, ok
}

func (b *base) MemBytes() int {
	n := 0
	for k, s := range b.postings {
		n += len(k) + s.SizeInBytes() + 48
	}
	return n
}

// comparator builds the fallback comparator for conditions the index
// cannot answer from its keys. Composite kinds have no single field
// to compare on.
func (b *base) comparator(cond model.CondType, values []keyvalue.Value) (*SelectKeyResults, error) {
	if b.kind.IsComposite() {
		return nil, model.ErrQueryExec("condition %s is not supported by composite index %q", cond, b.name)
	}
	cmp := NewFieldComparator(b.fields.Fields()[0], cond, values, b.opts.Collate)
	return &SelectKeyResults{Comparators: []*Comparator{cmp}}, nil
}

// selectEqSet serves Eq/Set/Any from the posting map. With
// HintForceIdset every key keeps its own result so that a distinct
// iterator can exclude the current key's set after each accepted row.
func (b *base) selectEqSet(values []keyvalue.Value, cond model.CondType, hint SelectHint) (*SelectKeyResults, error) {
	perKey := hint == HintForceIdset

	var keys []keyvalue.Value
	switch cond {
	case model.CondEq:
		if len(values) == 0 {
			return nil, model.ErrQueryExec("condition = on index %q requires a value", b.name)
		}
		keys = values[:1]
	case model.CondSet:
		keys = values
	case model.CondAny:
		res := &SelectKeyResults{}
		if perKey {
			for _, s := range b.postings {
				res.Results = append(res.Results, SingleKeyResult{IDs: s})
			}
			return res, nil
		}
		all := idset.New()
		for _, s := range b.postings {
			all.Or(s)
		}
		res.Results = append(res.Results, SingleKeyResult{IDs: all})
		return res, nil
	}

	res := &SelectKeyResults{}
	if perKey || len(keys) == 1 {
		for _, v := range keys {
			if s, ok := b.posting(v); ok {
				res.Results = append(res.Results, SingleKeyResult{IDs: s})
			}
		}
		return res, nil
	}

	// Multi-value set: one merged posting list, memoized per value
	// list.
	cacheKey := cache.MakeIdSetKey(cond, 0, keys)
	merged, found, admitted := b.cache.Get(cacheKey)
	if found {
		res.Results = append(res.Results, SingleKeyResult{IDs: merged})
		return res, nil
	}
	merged = idset.New()
	for _, v := range keys {
		if s, ok := b.posting(v); ok {
			merged.Or(s)
		}
	}
	if admitted {
		b.cache.Put(cacheKey, merged)
	}
	res.Results = append(res.Results, SingleKeyResult{IDs: merged})
	return res, nil
}

// HashIndex is an unordered index: O(1) key lookup, no ranges, no
// sort orders.
type HashIndex struct {
	base
}

// NewHash creates an unordered index over a single field.
func NewHash(name string, keyType keyvalue.Type, opts Opts, fields payload.FieldsSet) *HashIndex {
	return &HashIndex{base: newBase(name, KindHash, keyType, opts, fields)}
}

// NewCompositeHash creates an unordered index keyed by a packed field
// tuple.
func NewCompositeHash(name string, opts Opts, fields payload.FieldsSet) *HashIndex {
	return &HashIndex{base: newBase(name, KindCompositeHash, keyvalue.TypeComposite, opts, fields)}
}

// Upsert adds id to the posting list of key.
func (h *HashIndex) Upsert(key keyvalue.Value, id model.IdType) {
	enc := h.encodeKey(key)
	s, ok := h.postings[enc]
	if !ok {
		s = idset.New()
		h.postings[enc] = s
	}
	s.Add(id)
}

// Delete removes id from the posting list of key.
func (h *HashIndex) Delete(key keyvalue.Value, id model.IdType) {
	enc := h.encodeKey(key)
	if s, ok := h.postings[enc]; ok {
		s.Remove(id)
		if s.IsEmpty() {
			delete(h.postings, enc)
		}
	}
}

// SelectKey evaluates a predicate. Range and empty conditions demote
// to a comparator since hash keys carry no order.
func (h *HashIndex) SelectKey(values []keyvalue.Value, cond model.CondType, sortID int, hint SelectHint) (*SelectKeyResults, error) {
	if hint == HintForceComparator {
		return h.comparator(cond, values)
	}
	switch cond {
	case model.CondEq, model.CondSet, model.CondAny:
		return h.selectEqSet(values, cond, hint)
	default:
		return h.comparator(cond, values)
	}
}

// SortOrders always returns nils: hash indexes are unordered.
func (h *HashIndex) SortOrders() ([]model.SortType, []model.IdType) { return nil, nil }

// BuildSortOrders is a no-op for unordered indexes.
func (h *HashIndex) BuildSortOrders(int) {}

// SortID always returns 0 for unordered indexes.
func (h *HashIndex) SortID() int { return 0 }
