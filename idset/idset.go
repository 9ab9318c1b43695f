package idset

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/rexdb/model"
)

// IdSet is a sorted set of document ids.
//
// Insertions default to immediate, ordered placement. AddUnordered
// stages ids in an append buffer instead; the buffer is merged in one
// batch before the next read. Bulk index rebuilds use the staged mode
// to avoid per-id container lookups.
//
// An IdSet is not safe for concurrent mutation. Sharing a read-only
// IdSet between iterators and caches is safe once it is sealed by the
// first read.
type IdSet struct {
	bm      *roaring.Bitmap
	pending []uint32
}

// New creates an empty IdSet.
func New() *IdSet {
	return &IdSet{bm: roaring.New()}
}

// NewWithIDs creates an IdSet holding the given ids.
func NewWithIDs(ids ...model.IdType) *IdSet {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id keeping the set ordered.
func (s *IdSet) Add(id model.IdType) {
	s.flush()
	s.bm.Add(uint32(id))
}

// AddUnordered stages id for deferred insertion. The set is
// re-sorted in one batch before the next read.
func (s *IdSet) AddUnordered(id model.IdType) {
	s.pending = append(s.pending, uint32(id))
}

// Remove deletes id from the set.
func (s *IdSet) Remove(id model.IdType) {
	s.flush()
	s.bm.Remove(uint32(id))
}

// Contains reports membership.
func (s *IdSet) Contains(id model.IdType) bool {
	s.flush()
	return s.bm.Contains(uint32(id))
}

// Len returns the number of ids in the set.
func (s *IdSet) Len() int {
	s.flush()
	return int(s.bm.GetCardinality())
}

// IsEmpty reports whether the set has no ids.
func (s *IdSet) IsEmpty() bool { return s.Len() == 0 }

// And intersects s with o in place.
func (s *IdSet) And(o *IdSet) {
	s.flush()
	o.flush()
	s.bm.And(o.bm)
}

// Or unions o into s.
func (s *IdSet) Or(o *IdSet) {
	s.flush()
	o.flush()
	s.bm.Or(o.bm)
}

// AndNot removes o's ids from s.
func (s *IdSet) AndNot(o *IdSet) {
	s.flush()
	o.flush()
	s.bm.AndNot(o.bm)
}

// Union returns a new set holding a ∪ b.
func Union(a, b *IdSet) *IdSet {
	a.flush()
	b.flush()
	return &IdSet{bm: roaring.Or(a.bm, b.bm)}
}

// Intersect returns a new set holding a ∩ b.
func Intersect(a, b *IdSet) *IdSet {
	a.flush()
	b.flush()
	return &IdSet{bm: roaring.And(a.bm, b.bm)}
}

// Difference returns a new set holding a \ b.
func Difference(a, b *IdSet) *IdSet {
	a.flush()
	b.flush()
	return &IdSet{bm: roaring.AndNot(a.bm, b.bm)}
}

// Clone returns an independent copy.
func (s *IdSet) Clone() *IdSet {
	s.flush()
	return &IdSet{bm: s.bm.Clone()}
}

// ToSlice materializes the ids in ascending order.
func (s *IdSet) ToSlice() []model.IdType {
	s.flush()
	out := make([]model.IdType, 0, s.bm.GetCardinality())
	it := s.bm.Iterator()
	for it.HasNext() {
		out = append(out, model.IdType(it.Next()))
	}
	return out
}

// Minimum returns the smallest id; ok is false for an empty set.
func (s *IdSet) Minimum() (model.IdType, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	return model.IdType(s.bm.Minimum()), true
}

// Maximum returns the largest id; ok is false for an empty set.
func (s *IdSet) Maximum() (model.IdType, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	return model.IdType(s.bm.Maximum()), true
}

// SizeInBytes returns the serialized footprint. Cache budgets charge
// entries by this value.
func (s *IdSet) SizeInBytes() int {
	s.flush()
	return int(s.bm.GetSizeInBytes())
}

func (s *IdSet) flush() {
	if len(s.pending) == 0 {
		return
	}
	s.bm.AddMany(s.pending)
	s.pending = s.pending[:0]
}

// Iterator walks an IdSet in ascending or descending order.
type Iterator struct {
	fwd roaring.IntIterable
	rev roaring.IntIterable
}

// Iterator returns a forward (ascending) iterator.
func (s *IdSet) Iterator() *Iterator {
	s.flush()
	return &Iterator{fwd: s.bm.Iterator()}
}

// ReverseIterator returns a descending iterator.
func (s *IdSet) ReverseIterator() *Iterator {
	s.flush()
	return &Iterator{rev: s.bm.ReverseIterator()}
}

// HasNext reports whether another id is available.
func (it *Iterator) HasNext() bool {
	if it.rev != nil {
		return it.rev.HasNext()
	}
	return it.fwd.HasNext()
}

// Next returns the next id in iteration order.
func (it *Iterator) Next() model.IdType {
	if it.rev != nil {
		return model.IdType(it.rev.Next())
	}
	return model.IdType(it.fwd.Next())
}
