package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

func collectIDs(t *testing.T, res *SelectKeyResults) []model.IdType {
	t.Helper()
	var out []model.IdType
	for _, r := range res.Results {
		require.False(t, r.IsRange, "expected materialized ids")
		out = append(out, r.IDs.ToSlice()...)
	}
	return out
}

func TestHashEqAndSet(t *testing.T) {
	h := NewHash("age", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	h.Upsert(keyvalue.Int(10), 1)
	h.Upsert(keyvalue.Int(20), 2)
	h.Upsert(keyvalue.Int(20), 4)
	h.Upsert(keyvalue.Int(30), 3)

	res, err := h.SelectKey([]keyvalue.Value{keyvalue.Int(20)}, model.CondEq, 0, HintNone)
	require.NoError(t, err)
	assert.Equal(t, []model.IdType{2, 4}, collectIDs(t, res))

	res, err = h.SelectKey([]keyvalue.Value{keyvalue.Int(10), keyvalue.Int(30)}, model.CondSet, 0, HintNone)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.IdType{1, 3}, collectIDs(t, res))
	assert.Len(t, res.Results, 1, "multi-value set merges into one posting list")

	// Missing key yields an empty result, not an error.
	res, err = h.SelectKey([]keyvalue.Value{keyvalue.Int(99)}, model.CondEq, 0, HintNone)
	require.NoError(t, err)
	assert.Empty(t, collectIDs(t, res))
}

func TestHashDistinctHintKeepsPerKeyResults(t *testing.T) {
	h := NewHash("age", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	h.Upsert(keyvalue.Int(10), 1)
	h.Upsert(keyvalue.Int(20), 2)
	h.Upsert(keyvalue.Int(20), 4)

	res, err := h.SelectKey(nil, model.CondAny, 0, HintForceIdset)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2, "one result per key under distinct")
}

func TestHashRangeFallsBackToComparator(t *testing.T) {
	h := NewHash("age", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	res, err := h.SelectKey([]keyvalue.Value{keyvalue.Int(5)}, model.CondGt, 0, HintNone)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Len(t, res.Comparators, 1)
}

func TestHashDelete(t *testing.T) {
	h := NewHash("age", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	h.Upsert(keyvalue.Int(10), 1)
	h.Delete(keyvalue.Int(10), 1)
	assert.Zero(t, h.Size())
}

func TestHashCollateKeying(t *testing.T) {
	h := NewHash("name", keyvalue.TypeString, Opts{Collate: keyvalue.CollateASCII}, payload.NewFieldsSet(0))
	h.Upsert(keyvalue.String("Alice"), 1)

	res, err := h.SelectKey([]keyvalue.Value{keyvalue.String("ALICE")}, model.CondEq, 0, HintNone)
	require.NoError(t, err)
	assert.Equal(t, []model.IdType{1}, collectIDs(t, res))
}

func buildTree(t *testing.T) *TreeIndex {
	t.Helper()
	tr := NewTree("price", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	for id, price := range map[model.IdType]int{1: 10, 2: 20, 3: 30, 4: 20, 5: 40} {
		tr.Upsert(keyvalue.Int(price), id)
	}
	return tr
}

func TestTreeRangeSelect(t *testing.T) {
	tr := buildTree(t)

	res, err := tr.SelectKey([]keyvalue.Value{keyvalue.Int(20)}, model.CondGe, 0, HintNone)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.IdType{2, 3, 4, 5}, collectIDs(t, res))

	res, err = tr.SelectKey([]keyvalue.Value{keyvalue.Int(15), keyvalue.Int(30)}, model.CondRange, 0, HintNone)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.IdType{2, 3, 4}, collectIDs(t, res))

	res, err = tr.SelectKey([]keyvalue.Value{keyvalue.Int(20)}, model.CondLt, 0, HintNone)
	require.NoError(t, err)
	assert.Equal(t, []model.IdType{1}, collectIDs(t, res))
}

func TestTreeSortOrdersAndRankRanges(t *testing.T) {
	tr := buildTree(t)
	tr.BuildSortOrders(6)
	sortID := tr.SortID()
	require.NotZero(t, sortID)

	ranks, sortedIDs := tr.SortOrders()
	require.Len(t, ranks, 6)
	// Key order 10,20,30,40 with ids ascending within a key.
	assert.Equal(t, []model.IdType{1, 2, 4, 3, 5}, sortedIDs)
	assert.Equal(t, model.SortIdUnexists, ranks[0], "id 0 is unindexed")
	assert.Equal(t, model.SortType(0), ranks[1])

	// Under the current epoch a range condition answers in rank space.
	res, err := tr.SelectKey([]keyvalue.Value{keyvalue.Int(20)}, model.CondGe, sortID, HintNone)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.True(t, res.Results[0].IsRange)
	assert.Equal(t, model.SortType(1), res.Results[0].RangeBegin)
	assert.Equal(t, model.SortType(5), res.Results[0].RangeEnd)

	// A write invalidates the permutation.
	tr.Upsert(keyvalue.Int(25), 0)
	gotRanks, _ := tr.SortOrders()
	assert.Nil(t, gotRanks)
	assert.Zero(t, tr.SortID())
}

func TestComparatorConditions(t *testing.T) {
	pt := payload.NewType("t")
	_, err := pt.Add(payload.Field{Name: "v", Type: keyvalue.TypeInt})
	require.NoError(t, err)

	doc := payload.NewValue(pt)
	doc.Set(0, keyvalue.Int(5), keyvalue.Int(9))

	tests := []struct {
		cond   model.CondType
		values []keyvalue.Value
		want   bool
	}{
		{model.CondEq, []keyvalue.Value{keyvalue.Int(5)}, true},
		{model.CondEq, []keyvalue.Value{keyvalue.Int(6)}, false},
		{model.CondSet, []keyvalue.Value{keyvalue.Int(1), keyvalue.Int(9)}, true},
		{model.CondLt, []keyvalue.Value{keyvalue.Int(6)}, true},
		{model.CondGt, []keyvalue.Value{keyvalue.Int(9)}, false},
		{model.CondRange, []keyvalue.Value{keyvalue.Int(6), keyvalue.Int(10)}, true},
		{model.CondAny, nil, true},
		{model.CondEmpty, nil, false},
		{model.CondAllSet, []keyvalue.Value{keyvalue.Int(5), keyvalue.Int(9)}, true},
		{model.CondAllSet, []keyvalue.Value{keyvalue.Int(5), keyvalue.Int(7)}, false},
	}
	for _, tt := range tests {
		c := NewFieldComparator(0, tt.cond, tt.values, keyvalue.CollateNone)
		assert.Equal(t, tt.want, c.Match(doc), "cond %s", tt.cond)
	}
}

func TestComparatorJSONPath(t *testing.T) {
	pt := payload.NewType("t")
	doc := payload.NewValue(pt)
	doc.Tail()["meta"] = map[string]any{"city": "berlin"}

	c := NewJSONPathComparator("meta.city", model.CondEq, []keyvalue.Value{keyvalue.String("berlin")})
	assert.True(t, c.Match(doc))

	c = NewJSONPathComparator("meta.city", model.CondEq, []keyvalue.Value{keyvalue.String("paris")})
	assert.False(t, c.Match(doc))
}

func TestComparatorDistinct(t *testing.T) {
	pt := payload.NewType("t")
	_, err := pt.Add(payload.Field{Name: "v", Type: keyvalue.TypeInt})
	require.NoError(t, err)

	a := payload.NewValue(pt)
	a.Set(0, keyvalue.Int(1))
	b := payload.NewValue(pt)
	b.Set(0, keyvalue.Int(1))

	c := NewFieldComparator(0, model.CondAny, nil, keyvalue.CollateNone)
	c.SetDistinct()
	assert.True(t, c.Match(a))
	assert.False(t, c.Match(b), "second document with the same value is skipped")
}

func TestFullTextScoring(t *testing.T) {
	ft := NewFullText("descr", Opts{}, payload.NewFieldsSet(0))
	ft.Upsert(keyvalue.String("quick brown fox"), 1)
	ft.Upsert(keyvalue.String("lazy brown dog"), 2)
	ft.Upsert(keyvalue.String("quick quick fox"), 3)

	res, err := ft.SelectKey([]keyvalue.Value{keyvalue.String("quick fox")}, model.CondEq, 0, HintNone)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.ElementsMatch(t, []model.IdType{1, 3}, res.Results[0].IDs.ToSlice())
	assert.Positive(t, res.Ranks[1])
	assert.Positive(t, res.Ranks[3])

	// Delete removes the document from all lists.
	ft.Delete(keyvalue.Value{}, 3)
	res, err = ft.SelectKey([]keyvalue.Value{keyvalue.String("quick")}, model.CondEq, 0, HintNone)
	require.NoError(t, err)
	assert.Equal(t, []model.IdType{1}, res.Results[0].IDs.ToSlice())

	// Ranges are meaningless for text.
	_, err = ft.SelectKey([]keyvalue.Value{keyvalue.String("a")}, model.CondGt, 0, HintNone)
	require.Error(t, err)
}

func TestKeysOf(t *testing.T) {
	pt := payload.NewType("t")
	_, err := pt.Add(payload.Field{Name: "a", Type: keyvalue.TypeInt})
	require.NoError(t, err)
	_, err = pt.Add(payload.Field{Name: "b", Type: keyvalue.TypeString})
	require.NoError(t, err)

	doc := payload.NewValue(pt)
	doc.Set(0, keyvalue.Int(1))
	doc.Set(1, keyvalue.String("x"))

	h := NewHash("a", keyvalue.TypeInt, Opts{}, payload.NewFieldsSet(0))
	keys := KeysOf(h, pt, doc)
	require.Len(t, keys, 1)
	assert.Equal(t, 1, keys[0].Int())

	ch := NewCompositeHash("a+b", Opts{}, payload.NewFieldsSet(0, 1))
	keys = KeysOf(ch, pt, doc)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].IsPacked())
}
