package namespace

import (
	"sort"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/query"
)

// rewriteEntries prepares the predicates for planning: binds fields to
// indexes, coerces values to index key types, folds same-index AND
// predicates together and substitutes composite indexes for covered
// equality runs. The input query is left untouched.
func (ns *Namespace) rewriteEntries(in []query.Entry) ([]query.Entry, error) {
	entries := make([]query.Entry, len(in))
	copy(entries, in)

	for i := range entries {
		if err := ns.bindEntry(&entries[i]); err != nil {
			return nil, err
		}
	}
	entries, err := ns.mergeAndEntries(entries)
	if err != nil {
		return nil, err
	}
	return ns.substituteComposites(entries)
}

// bindEntry resolves the entry's field to an index slot and coerces
// its values to the index key type.
func (ns *Namespace) bindEntry(e *query.Entry) error {
	pos, ok := ns.indexesByName[e.Index]
	if !ok {
		e.IdxNo = model.IndexByJSONPath
		return nil
	}
	e.IdxNo = pos
	idx := ns.indexes[pos]
	if idx.Kind() == index.KindFullText || idx.Kind().IsComposite() {
		return nil
	}
	converted := make([]keyvalue.Value, len(e.Values))
	for i, v := range e.Values {
		conv, err := v.Convert(idx.KeyType())
		if err != nil {
			return model.WrapError(model.CodeParams, err, "condition on index %q", e.Index)
		}
		converted[i] = conv
	}
	e.Values = converted
	return nil
}

// orAttachment marks entries that participate in an OR chain; those
// must not be folded.
func orAttachment(entries []query.Entry) []bool {
	att := make([]bool, len(entries))
	for i := range entries {
		if entries[i].Op == model.OpOr {
			att[i] = true
			if i > 0 {
				att[i-1] = true
			}
		}
	}
	return att
}

func mergeable(idx index.Index, e *query.Entry) bool {
	if e.IdxNo < 0 || e.Op != model.OpAnd {
		return false
	}
	k := idx.Kind()
	if k == index.KindFullText || k.IsComposite() || idx.Opts().Array {
		return false
	}
	switch e.Cond {
	case model.CondEq, model.CondSet, model.CondAny:
		return true
	}
	return false
}

// mergeAndEntries folds AND predicates on the same scalar index into
// one: equality sets intersect, CondAny is absorbed by the other side.
func (ns *Namespace) mergeAndEntries(entries []query.Entry) ([]query.Entry, error) {
	att := orAttachment(entries)
	byIdx := make(map[int]int)
	out := entries[:0]
	for i := range entries {
		e := entries[i]
		if att[i] || e.IdxNo < 0 || !mergeable(ns.indexes[e.IdxNo], &e) {
			out = append(out, e)
			continue
		}
		prev, seen := byIdx[e.IdxNo]
		if !seen {
			byIdx[e.IdxNo] = len(out)
			out = append(out, e)
			continue
		}
		out[prev] = mergeEqSet(&out[prev], &e, ns.indexes[e.IdxNo].Opts().Collate)
	}
	return out, nil
}

func mergeEqSet(a, b *query.Entry, collate keyvalue.CollateMode) query.Entry {
	res := *a
	res.Distinct = a.Distinct || b.Distinct
	switch {
	case a.Cond == model.CondAny:
		res.Cond, res.Values = b.Cond, b.Values
	case b.Cond == model.CondAny:
	default:
		vals := intersectValues(a.Values, b.Values, collate)
		switch len(vals) {
		case 1:
			res.Cond, res.Values = model.CondEq, vals
		default:
			res.Cond, res.Values = model.CondSet, vals
		}
	}
	return res
}

func intersectValues(a, b []keyvalue.Value, collate keyvalue.CollateMode) []keyvalue.Value {
	out := make([]keyvalue.Value, 0, len(a))
	for _, v := range a {
		for _, w := range b {
			if v.Equal(w, collate) {
				out = append(out, v)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Compare(out[j], collate) < 0 })
	dedup := out[:0]
	for i, v := range out {
		if i == 0 || !v.Equal(out[i-1], collate) {
			dedup = append(dedup, v)
		}
	}
	return dedup
}

// substituteComposites replaces runs of AND equality predicates whose
// fields cover a composite index with one packed-tuple predicate.
// Queries carrying a full-text predicate are left alone, the text
// scorer needs its candidates unreduced.
func (ns *Namespace) substituteComposites(entries []query.Entry) ([]query.Entry, error) {
	if ns.fulltextEntry(entries) >= 0 {
		return entries, nil
	}
	att := orAttachment(entries)

	// Field slot of each foldable single-field equality entry.
	byField := make(map[int]int)
	for i := range entries {
		e := &entries[i]
		if att[i] || e.Op != model.OpAnd || e.Cond != model.CondEq || e.IdxNo < 0 || e.Distinct {
			continue
		}
		idx := ns.indexes[e.IdxNo]
		if idx.Kind().IsComposite() || idx.Kind() == index.KindFullText {
			continue
		}
		fields := idx.Fields().Fields()
		if len(fields) != 1 || len(e.Values) != 1 {
			continue
		}
		if _, dup := byField[fields[0]]; !dup {
			byField[fields[0]] = i
		}
	}

	for pos, idx := range ns.indexes {
		if !idx.Kind().IsComposite() {
			continue
		}
		members := idx.Fields().Fields()
		covered := true
		for _, f := range members {
			if _, ok := byField[f]; !ok {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}

		children := make([]keyvalue.Value, len(members))
		first := len(entries)
		drop := make(map[int]bool, len(members))
		for i, f := range members {
			ei := byField[f]
			children[i] = entries[ei].Values[0]
			drop[ei] = true
			if ei < first {
				first = ei
			}
		}
		packed, err := payload.PackComposite(ns.payloadType, idx.Fields(), children)
		if err != nil {
			return nil, err
		}

		out := make([]query.Entry, 0, len(entries)-len(members)+1)
		for i := range entries {
			if i == first {
				out = append(out, query.Entry{
					Op: model.OpAnd, Cond: model.CondEq, Index: idx.Name(),
					Values: []keyvalue.Value{packed}, IdxNo: pos,
				})
				continue
			}
			if drop[i] {
				continue
			}
			out = append(out, entries[i])
		}
		// One substitution per query; re-run for nested coverage.
		return ns.substituteComposites(out)
	}
	return entries, nil
}

// fulltextEntry returns the position of the full-text predicate, -1
// when the query has none.
func (ns *Namespace) fulltextEntry(entries []query.Entry) int {
	for i := range entries {
		if entries[i].IdxNo >= 0 && ns.indexes[entries[i].IdxNo].Kind() == index.KindFullText {
			return i
		}
	}
	return -1
}
