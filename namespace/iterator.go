package namespace

import (
	"math"
	"sort"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// cursor walks one id set (or rank range) of an iterator in ascending
// or descending order of the iteration space.
type cursor struct {
	vals     []uint32
	isRange  bool
	begin    uint32
	end      uint32 // exclusive
	pos      int
	excluded bool
}

func newSetCursor(vals []uint32) *cursor {
	return &cursor{vals: vals}
}

func newRangeCursor(begin, end model.SortType) *cursor {
	if end < begin {
		end = begin
	}
	return &cursor{isRange: true, begin: uint32(begin), end: uint32(end)}
}

func (c *cursor) size() int {
	if c.isRange {
		return int(c.end - c.begin)
	}
	return len(c.vals)
}

func (c *cursor) reset(reverse bool) {
	if reverse {
		c.pos = c.size() - 1
	} else {
		c.pos = 0
	}
	c.excluded = false
}

// seekFwd returns the smallest value >= target, advancing the cursor.
func (c *cursor) seekFwd(target uint32) (uint32, bool) {
	if c.isRange {
		if target < c.begin {
			target = c.begin
		}
		if target >= c.end {
			return 0, false
		}
		return target, true
	}
	n := len(c.vals)
	if c.pos < n && c.vals[c.pos] < target {
		// Galloping then binary search keeps merges near linear when
		// cursors advance in lockstep.
		step := 1
		lo := c.pos
		for lo+step < n && c.vals[lo+step] < target {
			lo += step
			step <<= 1
		}
		hi := lo + step
		if hi > n {
			hi = n
		}
		c.pos = lo + sort.Search(hi-lo, func(i int) bool { return c.vals[lo+i] >= target })
	}
	if c.pos >= n {
		return 0, false
	}
	return c.vals[c.pos], true
}

// seekRev returns the largest value <= target, moving the cursor down.
func (c *cursor) seekRev(target uint32) (uint32, bool) {
	if c.isRange {
		if c.end == c.begin {
			return 0, false
		}
		if target >= c.end {
			target = c.end - 1
		}
		if target < c.begin {
			return 0, false
		}
		return target, true
	}
	for c.pos >= 0 && c.vals[c.pos] > target {
		c.pos--
	}
	if c.pos < 0 {
		return 0, false
	}
	return c.vals[c.pos], true
}

// selectIterator merges the cursors and comparators of one query
// predicate (plus any Or-chained follow-ups) into a single stream over
// the iteration space. A document matches the iterator when any cursor
// contains it or any comparator accepts its payload.
type selectIterator struct {
	name        string
	op          model.OpType
	distinct    bool
	cursors     []*cursor
	comparators []*index.Comparator
	ranks       map[model.IdType]int32
	reverse     bool
	lastCursor  int
}

func newSelectIterator(name string, op model.OpType, distinct bool) *selectIterator {
	return &selectIterator{name: name, op: op, distinct: distinct, lastCursor: -1}
}

// bind appends the outcome of one index selection to the iterator.
// When sortRanks is non-nil the loop runs in rank space: posting list
// ids are translated through it and documents without a rank are
// dropped from the cursor.
func (it *selectIterator) bind(res *index.SelectKeyResults, sortRanks []model.SortType) {
	for i := range res.Results {
		r := &res.Results[i]
		if r.IsRange {
			it.cursors = append(it.cursors, newRangeCursor(r.RangeBegin, r.RangeEnd))
			continue
		}
		ids := r.IDs.ToSlice()
		vals := make([]uint32, 0, len(ids))
		if sortRanks == nil {
			for _, id := range ids {
				vals = append(vals, uint32(id))
			}
		} else {
			for _, id := range ids {
				if rank := sortRanks[id]; rank != model.SortIdUnexists {
					vals = append(vals, uint32(rank))
				}
			}
			sort.Slice(vals, func(a, b int) bool { return vals[a] < vals[b] })
		}
		it.cursors = append(it.cursors, newSetCursor(vals))
	}
	it.comparators = append(it.comparators, res.Comparators...)
	if res.Ranks != nil {
		if it.ranks == nil {
			it.ranks = res.Ranks
		} else {
			for id, r := range res.Ranks {
				if r > it.ranks[id] {
					it.ranks[id] = r
				}
			}
		}
	}
}

func (it *selectIterator) start(reverse bool) {
	it.reverse = reverse
	for _, c := range it.cursors {
		c.reset(reverse)
	}
	it.lastCursor = -1
}

func (it *selectIterator) comparatorOnly() bool {
	return len(it.cursors) == 0 && len(it.comparators) > 0
}

// maxIterations bounds how many documents this iterator can yield.
func (it *selectIterator) maxIterations() int {
	if it.comparatorOnly() {
		return math.MaxInt
	}
	n := 0
	for _, c := range it.cursors {
		n += c.size()
	}
	return n
}

// nextFrom finds the first value at or past target in iteration order,
// remembering which cursor supplied it for excludeLastSet.
func (it *selectIterator) nextFrom(target uint32) (uint32, bool) {
	it.lastCursor = -1
	found := false
	var best uint32
	for i, c := range it.cursors {
		if c.excluded {
			continue
		}
		var v uint32
		var ok bool
		if it.reverse {
			v, ok = c.seekRev(target)
		} else {
			v, ok = c.seekFwd(target)
		}
		if !ok {
			continue
		}
		if !found || (!it.reverse && v < best) || (it.reverse && v > best) {
			best, found = v, true
			it.lastCursor = i
		}
	}
	return best, found
}

// excludeLastSet drops the cursor that produced the last value. Used
// by distinct selections once a key's representative has been taken.
func (it *selectIterator) excludeLastSet() {
	if it.lastCursor >= 0 {
		it.cursors[it.lastCursor].excluded = true
	}
}

func (it *selectIterator) matchComparators(pv *payload.Value) bool {
	for _, cmp := range it.comparators {
		if cmp.Match(pv) {
			return true
		}
	}
	return false
}

// rank returns the fulltext relevancy of id, scaled to the result
// Proc field, or 0 when the iterator carries no ranks.
func (it *selectIterator) rank(id model.IdType) int32 {
	if it.ranks == nil {
		return 0
	}
	return it.ranks[id]
}
