package namespace

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/query"
	"github.com/hupe1980/rexdb/storage"
)

func newTestNamespace(t *testing.T, opts ...Option) *Namespace {
	t.Helper()
	ns, err := New("items", opts...)
	require.NoError(t, err)
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "id", Kind: index.KindHash, FieldType: keyvalue.TypeInt,
		Opts: index.Opts{PK: true, Unique: true},
	}))
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "name", Kind: index.KindHash, FieldType: keyvalue.TypeString,
	}))
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "price", Kind: index.KindTree, FieldType: keyvalue.TypeInt,
	}))
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "genre", Kind: index.KindHash, FieldType: keyvalue.TypeInt,
	}))
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "description", Kind: index.KindFullText,
	}))
	return ns
}

func fillBooks(t *testing.T, ns *Namespace) {
	t.Helper()
	books := []map[string]any{
		{"id": 1, "name": "dune", "price": 500, "genre": 1, "description": "spice and sand"},
		{"id": 2, "name": "hyperion", "price": 300, "genre": 1, "description": "pilgrims and the shrike"},
		{"id": 3, "name": "neuromancer", "price": 200, "genre": 2, "description": "console cowboys in the matrix"},
		{"id": 4, "name": "solaris", "price": 300, "genre": 2, "description": "a living ocean"},
		{"id": 5, "name": "roadside picnic", "price": 150, "genre": 2, "description": "the zone and its stalkers"},
	}
	for _, b := range books {
		_, err := ns.UpsertMap(b)
		require.NoError(t, err)
	}
}

func pkOfItems(t *testing.T, ns *Namespace, qr *QueryResults) []int {
	t.Helper()
	no, ok := ns.PayloadType().FieldByName("id")
	require.True(t, ok)
	out := make([]int, 0, len(qr.Items))
	for _, it := range qr.Items {
		out = append(out, int(it.Value.GetFirst(no).Int64()))
	}
	return out
}

func TestUpsertSelectEq(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").Where("name", model.CondEq, "dune"))
	require.NoError(t, err)
	require.Len(t, qr.Items, 1)
	assert.Equal(t, []int{1}, pkOfItems(t, ns, qr))
}

func TestInsertConflictUpdateMissing(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	d := ns.NewDoc()
	require.NoError(t, d.FromMap(map[string]any{"id": 1, "name": "dupe", "price": 1, "genre": 1}))
	_, err := ns.Insert(d)
	var e *model.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, model.CodeConflict, e.Code())

	d = ns.NewDoc()
	require.NoError(t, d.FromMap(map[string]any{"id": 99, "name": "ghost", "price": 1, "genre": 1}))
	_, err = ns.Update(d)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, model.CodeNotFound, e.Code())
}

func TestUpsertReplacesByPK(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	_, err := ns.UpsertMap(map[string]any{"id": 1, "name": "dune II", "price": 600, "genre": 1})
	require.NoError(t, err)
	assert.Equal(t, 5, ns.ItemsCount())

	qr, err := ns.Select(query.New("items").Where("name", model.CondEq, "dune"))
	require.NoError(t, err)
	assert.Empty(t, qr.Items)

	qr, err = ns.Select(query.New("items").Where("name", model.CondEq, "dune II"))
	require.NoError(t, err)
	require.Len(t, qr.Items, 1)
	assert.EqualValues(t, 2, qr.Items[0].Value.Version())
}

func TestDeleteFreesAndReusesSlot(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	d := ns.NewDoc()
	require.NoError(t, d.SetField("id", 3))
	require.NoError(t, ns.Delete(d))
	assert.Equal(t, 4, ns.ItemsCount())

	id, err := ns.UpsertMap(map[string]any{"id": 6, "name": "ubik", "price": 250, "genre": 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, id) // slot of the deleted document
}

func TestSelectRange(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").Where("price", model.CondRange, 200, 300))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 3, 4}, pkOfItems(t, ns, qr))

	qr, err = ns.Select(query.New("items").Where("price", model.CondGt, 300))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pkOfItems(t, ns, qr))
}

func TestSelectOrNot(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").
		Where("name", model.CondEq, "dune").
		Or("name", model.CondEq, "solaris"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 4}, pkOfItems(t, ns, qr))

	qr, err = ns.Select(query.New("items").
		Where("genre", model.CondEq, 2).
		Not("name", model.CondEq, "solaris"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 5}, pkOfItems(t, ns, qr))

	_, err = ns.Select(query.New("items").Or("name", model.CondEq, "dune"))
	var e *model.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, model.CodeQueryExec, e.Code())
}

func TestAndMergeSameIndex(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	// Two AND predicates on one index fold into a single equality.
	entries, err := ns.rewriteEntries(query.New("items").
		Where("genre", model.CondSet, 1, 2).
		Where("genre", model.CondEq, 2).Entries)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CondEq, entries[0].Cond)

	qr, err := ns.Select(query.New("items").
		Where("genre", model.CondSet, 1, 2).
		Where("genre", model.CondEq, 2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 4, 5}, pkOfItems(t, ns, qr))
}

func TestCompositeSubstitution(t *testing.T) {
	ns := newTestNamespace(t)
	require.NoError(t, ns.AddIndex(IndexDef{
		Name: "genre+price", Kind: index.KindCompositeHash,
		Fields: []string{"genre", "price"},
	}))
	fillBooks(t, ns)

	q := query.New("items").
		Where("genre", model.CondEq, 2).
		Where("price", model.CondEq, 300)
	entries, err := ns.rewriteEntries(q.Entries)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "genre+price", entries[0].Index)

	qr, err := ns.Select(q)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, pkOfItems(t, ns, qr))
}

func TestGeneralSortAndPagination(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").Sort("price", false))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 2, 4, 1}, pkOfItems(t, ns, qr))

	qr, err = ns.Select(query.New("items").Sort("price", true).Offset(1).Limit(2))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, pkOfItems(t, ns, qr))
}

func TestIndexSortAfterRepeatedQueries(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	q := func() *query.Query { return query.New("items").Sort("price", false) }
	for i := 0; i < sortedQueriesThreshold+2; i++ {
		qr, err := ns.Select(q())
		require.NoError(t, err)
		assert.Equal(t, []int{5, 3, 2, 4, 1}, pkOfItems(t, ns, qr))
	}
	// The permutation is materialized by now and range queries ride it.
	no := ns.indexesByName["price"]
	assert.NotZero(t, ns.indexes[no].SortID())

	qr, err := ns.Select(query.New("items").
		Where("price", model.CondGe, 200).
		Sort("price", true))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2, 3}, pkOfItems(t, ns, qr))
}

func TestForcedSortOrder(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").
		Sort("price", false).
		ForceSortOrder(300, 500))
	require.NoError(t, err)
	got := pkOfItems(t, ns, qr)
	// Pinned prices lead in pin order, the rest keep the sort.
	assert.ElementsMatch(t, []int{2, 4}, got[:2])
	assert.Equal(t, []int{1, 5, 3}, got[2:])
}

func TestDistinct(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").Distinct("genre"))
	require.NoError(t, err)
	assert.Len(t, qr.Items, 2)
}

func TestFullTextSelect(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").Match("description", "the zone"))
	require.NoError(t, err)
	require.NotEmpty(t, qr.Items)
	assert.Equal(t, 5, pkOfItems(t, ns, qr)[0])
	assert.Positive(t, qr.Items[0].Ref.Proc)
}

func TestJSONPathPredicate(t *testing.T) {
	ns := newTestNamespace(t)
	_, err := ns.UpsertMap(map[string]any{
		"id": 1, "name": "dune", "price": 500, "genre": 1,
		"meta": map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	_, err = ns.UpsertMap(map[string]any{
		"id": 2, "name": "solaris", "price": 300, "genre": 2,
		"meta": map[string]any{"lang": "pl"},
	})
	require.NoError(t, err)

	qr, err := ns.Select(query.New("items").Where("meta.lang", model.CondEq, "pl"))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pkOfItems(t, ns, qr))
}

func TestAccurateTotal(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").
		Where("genre", model.CondEq, 2).
		Limit(1).ReqTotal())
	require.NoError(t, err)
	assert.Len(t, qr.Items, 1)
	assert.Equal(t, 3, qr.TotalCount)
}

func TestCachedTotalAdmission(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	q := func() *query.Query {
		return query.New("items").Where("genre", model.CondEq, 2).Limit(2).CachedTotal()
	}
	for i := 0; i < 3; i++ {
		qr, err := ns.Select(q())
		require.NoError(t, err)
		assert.Equal(t, 3, qr.TotalCount)
	}
	// First call tracks the fingerprint, second stores, third hits.
	st := ns.GetPerfStat()
	assert.EqualValues(t, 1, st.CacheHits)

	// Pagination reuses the entry: start/count are outside the
	// fingerprint.
	qr, err := ns.Select(q().Offset(2))
	require.NoError(t, err)
	assert.Equal(t, 3, qr.TotalCount)
	assert.EqualValues(t, 2, ns.GetPerfStat().CacheHits)

	// A write drops the cached total.
	_, err = ns.UpsertMap(map[string]any{"id": 7, "name": "lem", "price": 90, "genre": 2})
	require.NoError(t, err)
	qr, err = ns.Select(q())
	require.NoError(t, err)
	assert.Equal(t, 4, qr.TotalCount)
}

func TestAggregations(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	qr, err := ns.Select(query.New("items").
		Where("genre", model.CondEq, 2).
		Aggregate("price", query.AggSum).
		Aggregate("price", query.AggMin))
	require.NoError(t, err)
	assert.Empty(t, qr.Items)
	require.Len(t, qr.Aggregations, 2)
	assert.Equal(t, 650.0, qr.Aggregations[0].Value)
	assert.Equal(t, 150.0, qr.Aggregations[1].Value)

	qr, err = ns.Select(query.New("items").Aggregate("genre", query.AggFacet))
	require.NoError(t, err)
	require.Len(t, qr.Aggregations, 1)
	facets := qr.Aggregations[0].Facets
	require.Len(t, facets, 2)
	assert.Equal(t, 3, facets[0].Count)
	assert.Equal(t, 2, facets[1].Count)
}

func TestDeleteQuery(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	n, err := ns.DeleteQuery(query.New("items").Where("genre", model.CondEq, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, ns.ItemsCount())

	qr, err := ns.Select(query.New("items"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, pkOfItems(t, ns, qr))
}

func TestMetaRoundTrip(t *testing.T) {
	ns := newTestNamespace(t, WithStorage(storage.NewMemory()))

	require.NoError(t, ns.PutMeta("owner", []byte("library")))
	v, err := ns.GetMeta("owner")
	require.NoError(t, err)
	assert.Equal(t, []byte("library"), v)

	keys, err := ns.EnumMeta()
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, keys)
}

func TestStorageReload(t *testing.T) {
	st := storage.NewMemory()
	ns := newTestNamespace(t, WithStorage(st))
	fillBooks(t, ns)
	require.NoError(t, ns.Close())

	reloaded, err := New("items", WithStorage(st))
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.ItemsCount())

	qr, err := reloaded.Select(query.New("items").Where("name", model.CondEq, "dune"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pkOfItems(t, reloaded, qr))
}

func TestDropIndexFallsBackToComparator(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	require.NoError(t, ns.DropIndex("genre"))

	// The column survives the index, so the predicate runs as a scan.
	qr, err := ns.Select(query.New("items").Where("genre", model.CondEq, 2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 4, 5}, pkOfItems(t, ns, qr))

	var me *model.Error
	err = ns.DropIndex("id")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.CodeLogic, me.Code())

	err = ns.DropIndex("nope")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.CodeNotFound, me.Code())
}

func TestConfigureIndex(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	require.NoError(t, ns.ConfigureIndex("name", index.Opts{Collate: keyvalue.CollateASCII}))
	qr, err := ns.Select(query.New("items").Where("name", model.CondEq, "DUNE"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pkOfItems(t, ns, qr))

	var me *model.Error
	err = ns.ConfigureIndex("id", index.Opts{Unique: true})
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.CodeLogic, me.Code())
}

func TestCacheModeAggressiveAndOff(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	q := func() *query.Query {
		return query.New("items").Where("genre", model.CondEq, 2).Limit(2).CachedTotal()
	}

	require.NoError(t, ns.SetCacheMode(CacheModeAggressive))
	for i := 0; i < 2; i++ {
		qr, err := ns.Select(q())
		require.NoError(t, err)
		assert.Equal(t, 3, qr.TotalCount)
	}
	// Aggressive stores on the first sighting, so the second hits.
	assert.EqualValues(t, 1, ns.GetPerfStat().CacheHits)

	require.NoError(t, ns.SetCacheMode(CacheModeOff))
	for i := 0; i < 2; i++ {
		qr, err := ns.Select(q())
		require.NoError(t, err)
		assert.Equal(t, 3, qr.TotalCount)
	}
	assert.EqualValues(t, 1, ns.GetPerfStat().CacheHits)
}

func TestPerfLatencyCounters(t *testing.T) {
	ns := newTestNamespace(t)
	ns.EnablePerfCounters(true)
	fillBooks(t, ns)

	_, err := ns.Select(query.New("items").Where("genre", model.CondEq, 1))
	require.NoError(t, err)

	st := ns.GetPerfStat()
	assert.EqualValues(t, 5, st.Upserts)
	assert.Positive(t, st.UpsertAvgNanos)
	assert.Positive(t, st.SelectAvgNanos)
}

func TestDistinctWithFullTextRejected(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	_, err := ns.Select(query.New("items").
		Match("description", "zone").
		Distinct("genre"))
	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.CodeQueryExec, me.Code())
}

func TestMemStat(t *testing.T) {
	ns := newTestNamespace(t)
	fillBooks(t, ns)

	st := ns.GetMemStat()
	assert.Equal(t, "items", st.Name)
	assert.Equal(t, ns.Instance(), st.Instance)
	assert.NotEqual(t, uuid.Nil, st.Instance)
	assert.Equal(t, 5, st.ItemsCount)
	assert.Contains(t, st.Indexes, "price")
	assert.Positive(t, st.Indexes["price"])
}
