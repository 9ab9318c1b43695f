package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rexdb/keyvalue"
)

func testSchema(t *testing.T) *Type {
	t.Helper()
	pt := NewType("test")
	for _, f := range []Field{
		{Name: "id", Type: keyvalue.TypeInt},
		{Name: "name", Type: keyvalue.TypeString},
		{Name: "score", Type: keyvalue.TypeDouble},
	} {
		_, err := pt.Add(f)
		require.NoError(t, err)
	}
	return pt
}

func TestTypeAddAndLookup(t *testing.T) {
	pt := testSchema(t)
	assert.Equal(t, 3, pt.NumFields())

	i, ok := pt.FieldByName("name")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = pt.FieldByName("missing")
	assert.False(t, ok)

	// Identical re-add is a no-op.
	_, err := pt.Add(Field{Name: "id", Type: keyvalue.TypeInt, JSONPath: "id"})
	require.NoError(t, err)

	// Conflicting re-add is rejected.
	_, err = pt.Add(Field{Name: "id", Type: keyvalue.TypeString})
	require.Error(t, err)
}

func TestValueFieldsAndTail(t *testing.T) {
	pt := testSchema(t)
	v := NewValue(pt)
	v.Set(0, keyvalue.Int(7))
	v.Set(1, keyvalue.String("kim"))

	assert.Equal(t, 7, v.GetFirst(0).Int())
	assert.Equal(t, "kim", v.GetFirst(1).Text())
	assert.Equal(t, keyvalue.TypeUndefined, v.GetFirst(2).Type())

	v.Tail()["meta"] = map[string]any{"city": "berlin", "tags": []any{"a", "b"}}

	got := v.GetByPath("meta.city")
	require.Len(t, got, 1)
	assert.Equal(t, "berlin", got[0].Text())

	tags := v.GetByPath("meta.tags")
	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].Text())

	assert.Empty(t, v.GetByPath("meta.missing"))
	assert.Empty(t, v.GetByPath("nope"))
}

func TestValueClone(t *testing.T) {
	pt := testSchema(t)
	v := NewValue(pt)
	v.Set(0, keyvalue.Int(1))
	v.Tail()["x"] = "y"

	c := v.Clone()
	c.Set(0, keyvalue.Int(2))
	c.Tail()["x"] = "z"

	assert.Equal(t, 1, v.GetFirst(0).Int())
	assert.Equal(t, "y", v.Tail()["x"])
}

func TestFieldsSet(t *testing.T) {
	fs := NewFieldsSet(2, 0)
	assert.True(t, fs.Contains(0))
	assert.True(t, fs.Contains(2))
	assert.False(t, fs.Contains(1))

	sub := NewFieldsSet(0)
	assert.True(t, fs.ContainsAll(sub))
	assert.False(t, sub.ContainsAll(fs))

	var withPath FieldsSet
	withPath.PushField(0)
	withPath.PushJSONPath("meta.city")
	assert.True(t, withPath.HasJSONPaths())
	assert.False(t, fs.ContainsAll(withPath))
	assert.Equal(t, 2, withPath.Len())
}

func TestTagsMatcher(t *testing.T) {
	tm := NewTagsMatcher()
	a := tm.NameToTag("price")
	b := tm.NameToTag("name")
	assert.Equal(t, a, tm.NameToTag("price"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "price", tm.TagToName(a))
	assert.Equal(t, "", tm.TagToName(99))
	assert.Equal(t, 2, tm.Version())

	tags := tm.PathToTags("meta.city")
	assert.Len(t, tags, 2)

	restored := NewTagsMatcher()
	restored.Load(tm.Names(), tm.Version())
	assert.Equal(t, a, restored.NameToTag("price"))
	assert.Equal(t, tm.Version(), restored.Version())
}

func TestPackComposite(t *testing.T) {
	pt := testSchema(t)
	fields := NewFieldsSet(0, 1)

	k1, err := PackComposite(pt, fields, []keyvalue.Value{keyvalue.Int(1), keyvalue.String("x")})
	require.NoError(t, err)

	// Coerced inputs pack identically.
	k2, err := PackComposite(pt, fields, []keyvalue.Value{keyvalue.String("1"), keyvalue.String("x")})
	require.NoError(t, err)
	assert.True(t, k1.Equal(k2, keyvalue.CollateNone))

	// Arity mismatch.
	_, err = PackComposite(pt, fields, []keyvalue.Value{keyvalue.Int(1)})
	require.Error(t, err)

	// JSON path member.
	var bad FieldsSet
	bad.PushField(0)
	bad.PushJSONPath("meta.city")
	_, err = PackComposite(pt, bad, []keyvalue.Value{keyvalue.Int(1), keyvalue.String("x")})
	require.Error(t, err)
}

func TestPackFromValueMatchesPackComposite(t *testing.T) {
	pt := testSchema(t)
	fields := NewFieldsSet(0, 1)

	v := NewValue(pt)
	v.Set(0, keyvalue.Int(5))
	v.Set(1, keyvalue.String("abc"))

	stored := PackFromValue(pt, fields, v)
	queried, err := PackComposite(pt, fields, []keyvalue.Value{keyvalue.Int(5), keyvalue.String("abc")})
	require.NoError(t, err)
	assert.True(t, stored.Equal(queried, keyvalue.CollateNone))
}
