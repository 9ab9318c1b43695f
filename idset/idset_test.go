package idset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rexdb/model"
)

func TestAddOrderedAndUnordered(t *testing.T) {
	a := NewWithIDs(3, 1, 2)
	assert.Equal(t, []model.IdType{1, 2, 3}, a.ToSlice())

	b := New()
	b.AddUnordered(9)
	b.AddUnordered(4)
	b.AddUnordered(9)
	assert.Equal(t, []model.IdType{4, 9}, b.ToSlice())
	assert.Equal(t, 2, b.Len())
}

func TestSetAlgebra(t *testing.T) {
	a := NewWithIDs(1, 2, 3, 4)
	b := NewWithIDs(3, 4, 5)

	assert.Equal(t, []model.IdType{1, 2, 3, 4, 5}, Union(a, b).ToSlice())
	assert.Equal(t, []model.IdType{3, 4}, Intersect(a, b).ToSlice())
	assert.Equal(t, []model.IdType{1, 2}, Difference(a, b).ToSlice())

	// In-place forms.
	c := a.Clone()
	c.And(b)
	assert.Equal(t, []model.IdType{3, 4}, c.ToSlice())

	d := a.Clone()
	d.AndNot(b)
	assert.Equal(t, []model.IdType{1, 2}, d.ToSlice())

	// Source sets unchanged by the non-mutating forms.
	assert.Equal(t, 4, a.Len())
}

func TestRemoveContains(t *testing.T) {
	s := NewWithIDs(1, 2)
	assert.True(t, s.Contains(2))
	s.Remove(2)
	assert.False(t, s.Contains(2))
	assert.Equal(t, 1, s.Len())
}

func TestIterators(t *testing.T) {
	s := NewWithIDs(5, 1, 3)

	var fwd []model.IdType
	for it := s.Iterator(); it.HasNext(); {
		fwd = append(fwd, it.Next())
	}
	assert.Equal(t, []model.IdType{1, 3, 5}, fwd)

	var rev []model.IdType
	for it := s.ReverseIterator(); it.HasNext(); {
		rev = append(rev, it.Next())
	}
	assert.Equal(t, []model.IdType{5, 3, 1}, rev)
}

func TestMinMaxAndSize(t *testing.T) {
	s := New()
	_, ok := s.Minimum()
	assert.False(t, ok)

	s.Add(10)
	s.Add(2)
	min, ok := s.Minimum()
	require.True(t, ok)
	assert.Equal(t, model.IdType(2), min)
	max, _ := s.Maximum()
	assert.Equal(t, model.IdType(10), max)

	assert.Positive(t, s.SizeInBytes())
}
