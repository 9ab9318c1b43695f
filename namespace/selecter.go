package namespace

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/query"
)

// postSortMode says how collected rows are reordered after the loop.
type postSortMode int

const (
	postSortNone postSortMode = iota
	postSortField
	postSortRank
)

// selectPlan is the executable shape of one query: the ordered
// iterator list plus everything the loop and post-processing need.
type selectPlan struct {
	iters     []*selectIterator
	sorted    bool
	sortIdxNo int
	ranks     []model.SortType
	sortedIDs []model.IdType
	reverse   bool
	haveScan  bool

	postSort     postSortMode
	postSortNo   int
	postSortPath string
	postSortDesc bool
	postCollate  keyvalue.CollateMode
	isForceAll   bool
}

// Select runs a query over this namespace alone.
func (ns *Namespace) Select(q *query.Query) (*QueryResults, error) {
	return ns.SelectWithJoins(q, nil, false)
}

// SelectWithJoins runs a query with prepared joined selectors. When
// locked is set the caller (the join coordinator) already holds the
// read locks of every involved namespace in name order.
func (ns *Namespace) SelectWithJoins(q *query.Query, joins []*JoinedSelector, locked bool) (*QueryResults, error) {
	if !locked {
		ns.PrepareSort(q, len(joins) > 0)
		ns.mtx.RLock()
		defer ns.mtx.RUnlock()
	}
	qr := &QueryResults{}
	if err := ns.doSelect(q, joins, qr); err != nil {
		return nil, err
	}
	return qr, nil
}

// PrepareSort builds the sort permutation ahead of a query when the
// query asks for an index sort that is not materialized yet. Cheap
// one-off sorted queries fall back to a general sort instead; only a
// repeating sort (or one feeding a join) is worth the build. Must be
// called before any query locks are taken.
func (ns *Namespace) PrepareSort(q *query.Query, hasJoins bool) {
	if q.SortBy == "" {
		return
	}
	ns.mtx.RLock()
	no, ok := ns.indexesByName[q.SortBy]
	need := ok && ns.indexes[no].Kind().IsOrdered() && ns.indexes[no].SortID() == 0
	ns.mtx.RUnlock()
	if !need {
		return
	}
	if !hasJoins && ns.sortedQueriesCount.Add(1) <= sortedQueriesThreshold {
		return
	}
	ns.mtx.Lock()
	ns.commitSortOrders(no)
	ns.mtx.Unlock()
}

// plan turns rewritten entries into an ordered iterator list.
func (ns *Namespace) plan(q *query.Query, entries []query.Entry) (*selectPlan, error) {
	p := &selectPlan{sortIdxNo: -1, postSortNo: -1}
	ft := ns.fulltextEntry(entries)
	if ft >= 0 {
		for i := range entries {
			if entries[i].Distinct {
				return nil, model.ErrQueryExec("distinct is not supported together with a full-text condition")
			}
		}
	}

	if q.SortBy != "" {
		no, ok := ns.indexesByName[q.SortBy]
		if !ok {
			return nil, model.ErrParams("sort field %q is not indexed in namespace %q", q.SortBy, ns.name)
		}
		idx := ns.indexes[no]
		if idx.Opts().Array {
			return nil, model.ErrParams("can't sort by array field %q", q.SortBy)
		}
		if ft < 0 && idx.Kind().IsOrdered() && idx.SortID() != 0 && len(q.ForcedSortOrder) == 0 {
			p.sorted, p.sortIdxNo = true, no
		} else {
			p.postSort = postSortField
			p.postSortDesc = q.SortDesc
			p.postCollate = idx.Opts().Collate
			if fields := idx.Fields().Fields(); len(fields) == 1 {
				p.postSortNo = fields[0]
			} else {
				p.postSortPath = q.SortBy
			}
			p.isForceAll = true
		}
	} else if ft >= 0 {
		p.postSort = postSortRank
		p.isForceAll = true
	} else if !q.HasDistinct() {
		// No order was requested; prefer an index whose permutation
		// is already built so range predicates walk rank space.
		best, bestSize := -1, -1
		for _, e := range entries {
			if e.IdxNo < 0 || !e.Cond.IsOrdered() {
				continue
			}
			idx := ns.indexes[e.IdxNo]
			if idx.Kind().IsOrdered() && idx.SortID() != 0 && idx.Size() > bestSize {
				best, bestSize = e.IdxNo, idx.Size()
			}
		}
		if best >= 0 {
			p.sorted, p.sortIdxNo = true, best
		}
	}
	if len(q.ForcedSortOrder) > 0 {
		if q.SortBy == "" {
			return nil, model.ErrParams("forced sort order requires a sort field")
		}
		p.isForceAll = true
	}

	if p.sorted {
		p.ranks, p.sortedIDs = ns.indexes[p.sortIdxNo].SortOrders()
		if p.ranks == nil {
			p.sorted, p.sortIdxNo = false, -1
		}
	}
	p.reverse = q.SortDesc && p.sorted

	iters, err := ns.buildIterators(entries, ft, p.sortIdxNo, p.ranks)
	if err != nil {
		return nil, err
	}
	p.iters = iters
	ns.orderIterators(p)
	return p, nil
}

// buildIterators evaluates every predicate against its index and
// groups OR chains into shared iterators.
func (ns *Namespace) buildIterators(entries []query.Entry, ft, sortIdxNo int, ranks []model.SortType) ([]*selectIterator, error) {
	var iters []*selectIterator
	var cur *selectIterator
	for i := range entries {
		e := &entries[i]
		switch e.Op {
		case model.OpAnd, model.OpOr, model.OpNot:
		default:
			return nil, model.ErrQueryExec("unknown operator %d on condition %q", e.Op, e.Index)
		}
		if e.Op == model.OpOr && cur == nil {
			return nil, model.ErrQueryExec("query must not start with an OR predicate")
		}

		hint := index.HintNone
		if e.Distinct {
			hint = index.HintForceIdset
		} else if ft >= 0 && i != ft {
			hint = index.HintForceComparator
		}

		var res *index.SelectKeyResults
		if e.IdxNo == model.IndexByJSONPath {
			// Fields that are in the schema but lost their index (after
			// a DropIndex) still match against their dense column.
			var cmp *index.Comparator
			if no, ok := ns.payloadType.FieldByName(e.Index); ok {
				cmp = index.NewFieldComparator(no, e.Cond, e.Values, keyvalue.CollateNone)
			} else {
				cmp = index.NewJSONPathComparator(e.Index, e.Cond, e.Values)
			}
			if e.Distinct {
				cmp.SetDistinct()
			}
			res = &index.SelectKeyResults{Comparators: []*index.Comparator{cmp}}
		} else {
			idx := ns.indexes[e.IdxNo]
			sortID := 0
			if e.IdxNo == sortIdxNo {
				sortID = idx.SortID()
			}
			var err error
			res, err = idx.SelectKey(e.Values, e.Cond, sortID, hint)
			if err != nil {
				return nil, err
			}
			if e.Distinct {
				for _, cmp := range res.Comparators {
					cmp.SetDistinct()
				}
			}
		}

		if e.Op == model.OpOr {
			cur.bind(res, ranks)
			cur.distinct = cur.distinct || e.Distinct
			continue
		}
		it := newSelectIterator(e.Index, e.Op, e.Distinct)
		it.bind(res, ranks)
		iters = append(iters, it)
		cur = it
	}
	return iters, nil
}

// canLead reports whether an iterator can drive the loop: it must
// enumerate candidates by itself, which NOT iterators and iterators
// carrying comparators cannot.
func canLead(it *selectIterator) bool {
	return it.op != model.OpNot && len(it.cursors) > 0 && len(it.comparators) == 0
}

// orderIterators sorts the iterator list by expected cost and inserts
// a full scan when no iterator can lead.
func (ns *Namespace) orderIterators(p *selectPlan) {
	sort.SliceStable(p.iters, func(i, j int) bool {
		a, b := p.iters[i], p.iters[j]
		if la, lb := canLead(a), canLead(b); la != lb {
			return la
		}
		return a.maxIterations() < b.maxIterations()
	})
	if len(p.iters) > 0 && canLead(p.iters[0]) {
		return
	}
	end := len(ns.items)
	if p.sorted {
		end = len(p.sortedIDs)
	}
	scan := newSelectIterator("-scan", model.OpAnd, false)
	scan.cursors = append(scan.cursors, newRangeCursor(0, model.SortType(end)))
	p.iters = append([]*selectIterator{scan}, p.iters...)
	p.haveScan = true
}

// contains reports whether the iterator accepts the candidate at val:
// a cursor hit or a comparator match.
func (it *selectIterator) contains(val uint32, pv *payload.Value) bool {
	if v, ok := it.nextFrom(val); ok && v == val {
		return true
	}
	// A comparator match must not feed excludeLastSet.
	it.lastCursor = -1
	return it.matchComparators(pv)
}

func (ns *Namespace) doSelect(q *query.Query, joins []*JoinedSelector, qr *QueryResults) error {
	ns.selectCount.Add(1)
	if ns.perfEnabled.Load() {
		defer func(t0 time.Time) { ns.selectNanos.Add(time.Since(t0).Nanoseconds()) }(time.Now())
	}

	entries, err := ns.rewriteEntries(q.Entries)
	if err != nil {
		return err
	}
	p, err := ns.plan(q, entries)
	if err != nil {
		return err
	}

	fp := q.Fingerprint()
	cachedTotal := false
	totalAdmitted := false
	if q.CalcTotal == model.CachedTotal && ns.cacheMode != CacheModeOff {
		ns.cacheMtx.Lock()
		total, found, admitted := ns.queryCache.GetTotal(fp)
		ns.cacheMtx.Unlock()
		if found {
			qr.TotalCount = total
			cachedTotal = true
			ns.cacheHits.Add(1)
		} else {
			totalAdmitted = admitted || ns.cacheMode == CacheModeAggressive
			ns.cacheMisses.Add(1)
		}
	}
	needTotal := q.CalcTotal == model.AccurateTotal ||
		(q.CalcTotal == model.CachedTotal && !cachedTotal)

	var aggs []*aggregator
	for _, ae := range q.Aggregations {
		aggs = append(aggs, newAggregator(ns.payloadType, ae))
	}

	// A single plain posting list answers the total without walking.
	if needTotal && len(joins) == 0 && len(aggs) == 0 && len(p.iters) == 1 {
		first := p.iters[0]
		if first.op == model.OpAnd && !first.distinct && len(first.comparators) == 0 {
			switch {
			case p.haveScan:
				qr.TotalCount = len(ns.items) - ns.free.Len()
				needTotal = false
			case len(first.cursors) == 1:
				qr.TotalCount = first.maxIterations()
				needTotal = false
			}
			if !needTotal && totalAdmitted {
				ns.storeCachedTotal(fp, qr.TotalCount)
			}
		}
	}

	total, err := ns.runLoop(q, p, joins, aggs, qr, needTotal)
	if err != nil {
		return err
	}
	if needTotal {
		qr.TotalCount = total
		if totalAdmitted {
			ns.storeCachedTotal(fp, total)
		}
	}

	ns.postProcess(q, p, qr)
	for _, a := range aggs {
		qr.Aggregations = append(qr.Aggregations, a.result())
	}
	qr.Contexts = append(qr.Contexts, NsContext{
		Name: ns.name, Type: ns.payloadType, Tags: ns.tags, SelectFilter: q.SelectFilter,
	})

	ns.logger.Log(context.Background(), ns.queriesLogLevel, "query executed",
		"namespace", ns.name,
		"iterators", len(p.iters),
		"sorted", p.sorted,
		"rows", len(qr.Items),
		"total", qr.TotalCount)
	return nil
}

// storeCachedTotal writes a computed total back for a fingerprint the
// cache already admitted.
func (ns *Namespace) storeCachedTotal(fp uint64, total int) {
	ns.cacheMtx.Lock()
	defer ns.cacheMtx.Unlock()
	ns.queryCache.PutTotal(fp, total)
}

// runLoop drives the merged iterators over the iteration space and
// applies joins, pagination and aggregation to accepted documents.
func (ns *Namespace) runLoop(q *query.Query, p *selectPlan, joins []*JoinedSelector, aggs []*aggregator, qr *QueryResults, needTotal bool) (int, error) {
	if len(p.iters) == 0 {
		return 0, nil
	}
	for _, it := range p.iters {
		it.start(p.reverse)
	}
	first := p.iters[0]

	start, limit := q.Start, q.Count
	if limit == 0 {
		limit = math.MaxInt
	}
	if p.isForceAll {
		start, limit = 0, math.MaxInt
	}

	var target uint32
	if p.reverse {
		target = math.MaxUint32
	}
	total := 0

	for {
		val, ok := first.nextFrom(target)
		if !ok {
			break
		}
		atEdge := false
		if p.reverse {
			if val == 0 {
				atEdge = true
			} else {
				target = val - 1
			}
		} else {
			if val == math.MaxUint32 {
				atEdge = true
			} else {
				target = val + 1
			}
		}

		realID := model.IdType(val)
		if p.sorted {
			realID = p.sortedIDs[val]
		}
		pv := ns.items[realID]
		match := !pv.IsFree()
		if !match && !p.haveScan {
			// Index postings never reference freed slots under the read
			// lock; hitting one means a write raced the select.
			panic(fmt.Sprintf("rexdb: freed document %d surfaced from index postings in namespace %q", realID, ns.name))
		}

		proc := int32(0)
		if match {
			proc = first.rank(realID)
			for _, it := range p.iters[1:] {
				hit := it.contains(val, pv)
				if it.op == model.OpNot {
					hit = !hit
				}
				if !hit {
					match = false
					break
				}
				if r := it.rank(realID); r > proc {
					proc = r
				}
			}
		}

		var joined [][]Item
		if match && len(joins) > 0 {
			joined = make([][]Item, len(joins))
			acc, cur, curValid := true, false, false
			for ji, js := range joins {
				switch js.Type {
				case model.JoinInner, model.JoinOrInner:
					m, items, err := js.Match(pv)
					if err != nil {
						return 0, err
					}
					if m {
						joined[ji] = items
					}
					if js.Type == model.JoinInner && curValid {
						acc = acc && cur
						cur, curValid = m, true
					} else if !curValid {
						cur, curValid = m, true
					} else {
						cur = cur || m
					}
				}
			}
			if curValid {
				acc = acc && cur
			}
			match = match && acc
		}

		if match {
			for _, it := range p.iters {
				if it.distinct {
					it.excludeLastSet()
				}
			}
			total++
			if start > 0 {
				start--
			} else if limit > 0 {
				limit--
				switch {
				case len(aggs) > 0:
					for _, a := range aggs {
						a.aggregate(pv)
					}
				default:
					for ji, js := range joins {
						if js.Type == model.JoinLeft {
							if m, items, err := js.Match(pv); err != nil {
								return 0, err
							} else if m {
								if joined == nil {
									joined = make([][]Item, len(joins))
								}
								joined[ji] = items
							}
						}
					}
					qr.Items = append(qr.Items, Item{
						Ref: model.ItemRef{
							ID: realID, Version: pv.Version(), Proc: proc, NsID: ns.id,
						},
						Value:  pv,
						Joined: joined,
					})
				}
			}
			if q.ReqMatchedOnce {
				break
			}
			if limit == 0 && !needTotal && len(aggs) == 0 {
				break
			}
		}
		if atEdge {
			break
		}
	}
	return total, nil
}

// postProcess applies forced sort, general sort and deferred
// pagination to collected rows.
func (ns *Namespace) postProcess(q *query.Query, p *selectPlan, qr *QueryResults) {
	switch p.postSort {
	case postSortRank:
		sort.SliceStable(qr.Items, func(i, j int) bool {
			return qr.Items[i].Ref.Proc > qr.Items[j].Ref.Proc
		})
	case postSortField:
		less := func(a, b *Item) bool {
			va, vb := ns.sortValue(p, a.Value), ns.sortValue(p, b.Value)
			cmp := va.Compare(vb, p.postCollate)
			if p.postSortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		sort.SliceStable(qr.Items, func(i, j int) bool {
			return less(&qr.Items[i], &qr.Items[j])
		})
	}

	if len(q.ForcedSortOrder) > 0 {
		ns.applyForcedSort(q, p, qr)
	}

	if p.isForceAll {
		startPos := q.Start
		if startPos > len(qr.Items) {
			startPos = len(qr.Items)
		}
		endPos := len(qr.Items)
		if q.Count > 0 && startPos+q.Count < endPos {
			endPos = startPos + q.Count
		}
		qr.Items = qr.Items[startPos:endPos]
	}
}

func (ns *Namespace) sortValue(p *selectPlan, pv *payload.Value) keyvalue.Value {
	if p.postSortNo >= 0 {
		return pv.GetFirst(p.postSortNo)
	}
	if vals := pv.GetByPath(p.postSortPath); len(vals) > 0 {
		return vals[0]
	}
	return keyvalue.Value{}
}

// applyForcedSort moves rows whose sort value is pinned to the front,
// in pin order, keeping the relative order of everything else.
func (ns *Namespace) applyForcedSort(q *query.Query, p *selectPlan, qr *QueryResults) {
	no := p.postSortNo
	collate := p.postCollate

	rankOf := func(it *Item) int {
		var v keyvalue.Value
		if no >= 0 {
			v = it.Value.GetFirst(no)
		} else {
			if vals := it.Value.GetByPath(p.postSortPath); len(vals) > 0 {
				v = vals[0]
			}
		}
		for i, fv := range q.ForcedSortOrder {
			if conv, err := fv.Convert(v.Type()); err == nil && conv.Equal(v, collate) {
				return i
			}
		}
		return len(q.ForcedSortOrder)
	}

	sort.SliceStable(qr.Items, func(i, j int) bool {
		return rankOf(&qr.Items[i]) < rankOf(&qr.Items[j])
	})
}

// selectJoinProbe runs the inner side of a join for one outer row:
// the on-condition entries plus the pre-evaluated static part. The
// caller holds this namespace's read lock.
func (ns *Namespace) selectJoinProbe(entries []query.Entry, pre *PreResult, limit int) ([]model.IdType, error) {
	rewritten, err := ns.rewriteEntries(entries)
	if err != nil {
		return nil, err
	}
	iters, err := ns.buildIterators(rewritten, ns.fulltextEntry(rewritten), -1, nil)
	if err != nil {
		return nil, err
	}
	if pre != nil {
		switch pre.Mode {
		case PreResultIdSet:
			it := newSelectIterator("-preresult", model.OpAnd, false)
			vals := make([]uint32, len(pre.IDs))
			for i, id := range pre.IDs {
				vals[i] = uint32(id)
			}
			it.cursors = append(it.cursors, newSetCursor(vals))
			iters = append(iters, it)
		case PreResultIterators:
			iters = append(iters, pre.iters...)
		}
	}
	p := &selectPlan{iters: iters, sortIdxNo: -1, postSortNo: -1}
	ns.orderIterators(p)

	if limit <= 0 {
		limit = math.MaxInt
	}
	var ids []model.IdType
	for _, it := range p.iters {
		it.start(false)
	}
	first := p.iters[0]
	var target uint32
	for len(ids) < limit {
		val, ok := first.nextFrom(target)
		if !ok {
			break
		}
		if val == math.MaxUint32 {
			break
		}
		target = val + 1
		id := model.IdType(val)
		pv := ns.items[id]
		if pv.IsFree() {
			continue
		}
		matched := true
		for _, it := range p.iters[1:] {
			hit := it.contains(val, pv)
			if it.op == model.OpNot {
				hit = !hit
			}
			if !hit {
				matched = false
				break
			}
		}
		if matched {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// buildPreResult evaluates the static predicates of a joined query.
// Small outcomes are materialized; anything at or above the threshold
// keeps its iterators for per-row re-execution.
func (ns *Namespace) buildPreResult(innerQ *query.Query) (*PreResult, error) {
	entries, err := ns.rewriteEntries(innerQ.Entries)
	if err != nil {
		return nil, err
	}
	iters, err := ns.buildIterators(entries, ns.fulltextEntry(entries), -1, nil)
	if err != nil {
		return nil, err
	}
	p := &selectPlan{iters: iters, sortIdxNo: -1, postSortNo: -1}
	ns.orderIterators(p)

	if p.iters[0].maxIterations() >= preResultIDSetThreshold {
		return &PreResult{Mode: PreResultIterators, iters: p.iters}, nil
	}

	ids, err := ns.selectJoinProbe(innerQ.Entries, nil, 0)
	if err != nil {
		return nil, err
	}
	return &PreResult{Mode: PreResultIdSet, IDs: ids}, nil
}

// DeleteQuery removes every document the query matches and returns
// how many went away. The selection runs under the read lock; the
// lock is upgraded for the removal and candidates re-validated, since
// a writer may slip in between.
func (ns *Namespace) DeleteQuery(q *query.Query) (int, error) {
	ns.mtx.RLock()
	qr := &QueryResults{}
	if err := ns.doSelect(q, nil, qr); err != nil {
		ns.mtx.RUnlock()
		return 0, err
	}
	type victim struct {
		id model.IdType
		v  *payload.Value
	}
	victims := make([]victim, 0, len(qr.Items))
	for i := range qr.Items {
		victims = append(victims, victim{id: qr.Items[i].Ref.ID, v: qr.Items[i].Value})
	}

	up := &lockUpgrader{mtx: &ns.mtx}
	up.Upgrade()
	defer ns.mtx.Unlock()

	n := 0
	for _, vt := range victims {
		if int(vt.id) >= len(ns.items) || ns.items[vt.id] != vt.v || vt.v.IsFree() {
			continue
		}
		if err := ns.deleteLocked(vt.id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
