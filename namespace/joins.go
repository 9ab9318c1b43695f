package namespace

import (
	"encoding/binary"
	"hash/maphash"

	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/query"
)

// PreResultMode says how the static part of a joined query was
// evaluated ahead of the outer loop.
type PreResultMode int

const (
	// PreResultIdSet holds the materialized ids of the static part.
	PreResultIdSet PreResultMode = iota
	// PreResultIterators keeps the planned iterators for re-execution
	// per outer row; used when materializing would be too large.
	PreResultIterators
)

// preResultIDSetThreshold is the estimated result size at or above which the
// static part is kept as iterators instead of a materialized id set.
const preResultIDSetThreshold = 10000

// PreResult is the pre-evaluated static part of a joined query.
type PreResult struct {
	Mode  PreResultMode
	IDs   []model.IdType
	iters []*selectIterator
}

var joinSeed = maphash.MakeSeed()

type onCondition struct {
	leftNo     int
	leftPath   string
	cond       model.CondType
	rightIndex string
}

// JoinedSelector evaluates one joined sub-query against the rows of
// the outer selection. The join coordinator must hold the read locks
// of both namespaces for the selector's whole lifetime.
type JoinedSelector struct {
	Type  model.JoinType
	outer *Namespace
	inner *Namespace
	q     *query.JoinedQuery

	on  []onCondition
	pre *PreResult
	fp  uint64

	// Called and Matched count probe activity for explain output.
	Called  int
	Matched int
}

// NewJoinedSelector prepares a joined sub-query. On conditions are
// resolved against the outer schema now; a left field unknown to the
// outer namespace falls back to a JSON path walk per row.
func NewJoinedSelector(outer, inner *Namespace, jq *query.JoinedQuery) (*JoinedSelector, error) {
	if len(jq.On) == 0 {
		return nil, model.ErrParams("join with namespace %q has no on conditions", inner.name)
	}
	js := &JoinedSelector{Type: jq.Type, outer: outer, inner: inner, q: jq}
	for _, on := range jq.On {
		oc := onCondition{leftNo: -1, leftPath: on.LeftField, cond: on.Cond, rightIndex: on.RightField}
		if no, ok := outer.payloadType.FieldByName(on.LeftField); ok {
			oc.leftNo = no
		}
		js.on = append(js.on, oc)
	}

	var h maphash.Hash
	h.SetSeed(joinSeed)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], jq.Query.Fingerprint())
	_, _ = h.Write(buf[:])
	for _, on := range jq.On {
		_, _ = h.WriteString(on.LeftField)
		_ = h.WriteByte(byte(on.Cond))
		_, _ = h.WriteString(on.RightField)
	}
	js.fp = h.Sum64()
	return js, nil
}

// BuildPreResult evaluates the static predicates of the joined query
// once, before the outer loop starts consuming it.
func (js *JoinedSelector) BuildPreResult() error {
	pre, err := js.inner.buildPreResult(js.q.Query)
	if err != nil {
		return err
	}
	js.pre = pre
	return nil
}

// Match probes the joined namespace with the outer row's key values
// and returns the joined items. A missing outer key never matches.
func (js *JoinedSelector) Match(outerVal *payload.Value) (bool, []Item, error) {
	js.Called++

	entries := make([]query.Entry, 0, len(js.q.Query.Entries)+len(js.on))
	entries = append(entries, js.q.Query.Entries...)
	var keyBuf []byte
	for _, oc := range js.on {
		var vals []keyvalue.Value
		if oc.leftNo >= 0 {
			vals = outerVal.Get(oc.leftNo)
		} else {
			vals = outerVal.GetByPath(oc.leftPath)
		}
		if len(vals) == 0 {
			return false, nil, nil
		}
		for _, v := range vals {
			keyBuf = v.AppendBinary(keyBuf)
		}
		cond := oc.cond
		if cond == model.CondEq && len(vals) > 1 {
			cond = model.CondSet
		}
		entries = append(entries, query.Entry{
			Op: model.OpAnd, Cond: cond, Index: oc.rightIndex,
			Values: vals, IdxNo: model.IndexNotSet,
		})
	}

	key := joinCacheKey{fingerprint: js.fp, values: string(keyBuf)}
	ids, cached := js.inner.joinCache.Get(key)
	if !cached {
		var err error
		ids, err = js.inner.selectJoinProbe(entries, js.pre, js.q.Query.Count)
		if err != nil {
			return false, nil, err
		}
		js.inner.joinCache.Add(key, ids)
	}
	if len(ids) == 0 {
		return false, nil, nil
	}

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		v := js.inner.items[id]
		if v.IsFree() {
			continue
		}
		items = append(items, Item{
			Ref:   model.ItemRef{ID: id, Version: v.Version(), NsID: js.inner.id},
			Value: v,
		})
	}
	if len(items) == 0 {
		return false, nil, nil
	}
	js.Matched++
	return true, items, nil
}
