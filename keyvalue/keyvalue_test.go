package keyvalue

import (
	"hash/maphash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		in     Value
		target Type
		want   Value
	}{
		{"int to int64", Int(42), TypeInt64, Int64(42)},
		{"int64 to double", Int64(7), TypeDouble, Double(7)},
		{"double to int", Double(3.9), TypeInt, Int(3)},
		{"string to int", String("17"), TypeInt, Int(17)},
		{"string to double", String("2.5"), TypeDouble, Double(2.5)},
		{"int to string", Int(5), TypeString, String("5")},
		{"identity", String("x"), TypeString, String("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Convert(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertIdempotent(t *testing.T) {
	for _, v := range []Value{Int(1), Int64(2), Double(3.5), String("abc")} {
		for _, target := range []Type{TypeInt, TypeInt64, TypeDouble, TypeString} {
			once, err := v.Convert(target)
			require.NoError(t, err)
			twice, err := once.Convert(target)
			require.NoError(t, err)
			assert.Equal(t, once, twice, "%s -> %s", v, target)
		}
	}
}

func TestConvertCompositeRejected(t *testing.T) {
	_, err := Int(1).Convert(TypeComposite)
	require.Error(t, err)
}

func TestCompareNumericTypes(t *testing.T) {
	assert.Negative(t, Int(1).Compare(Int64(2), CollateNone))
	assert.Positive(t, Double(2.5).Compare(Int(2), CollateNone))
	assert.Zero(t, Int(3).Compare(Double(3), CollateNone))
}

func TestCompareCollate(t *testing.T) {
	tests := []struct {
		a, b string
		mode CollateMode
		want int
	}{
		{"abc", "ABC", CollateNone, 1},
		{"abc", "ABC", CollateASCII, 0},
		{"Straße", "STRASSE", CollateASCII, 1},
		{"ЖУК", "жук", CollateUTF8, 0},
		{"item9", "item10", CollateNone, 1},
		{"9 apples", "10 apples", CollateNumeric, -1},
		{"2x", "2y", CollateNumeric, -1},
	}
	for _, tt := range tests {
		got := CollateCompare(tt.a, tt.b, tt.mode)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%q vs %q", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%q vs %q", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%q vs %q", tt.a, tt.b)
		}
	}
}

func TestCompositeStructuralEquality(t *testing.T) {
	a := Composite(Int(1), String("x"))
	b := Composite(Int(1), String("x"))
	c := Composite(Int(1), String("y"))
	assert.True(t, a.Equal(b, CollateNone))
	assert.False(t, a.Equal(c, CollateNone))
	assert.Negative(t, Composite(Int(1)).Compare(a, CollateNone))
}

func TestPackedCompositeEquality(t *testing.T) {
	a := PackedComposite([]byte{1, 2, 3})
	b := PackedComposite([]byte{1, 2, 3})
	c := PackedComposite([]byte{1, 2, 4})
	assert.True(t, a.Equal(b, CollateNone))
	assert.False(t, a.Equal(c, CollateNone))
}

func TestHashCoercedValuesCollide(t *testing.T) {
	seed := maphash.MakeSeed()
	sum := func(v Value) uint64 {
		var h maphash.Hash
		h.SetSeed(seed)
		v.Hash(&h)
		return h.Sum64()
	}
	// Int and int64 forms of the same number must land in the same
	// hash bucket after query-value coercion.
	assert.Equal(t, sum(Int(42)), sum(Int64(42)))
	assert.NotEqual(t, sum(String("42")), sum(String("43")))
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(float64(2))
	require.NoError(t, err)
	assert.Equal(t, TypeDouble, v.Type())

	v, err = FromAny("hi")
	require.NoError(t, err)
	assert.Equal(t, String("hi"), v)

	v, err = FromAny(true)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Int())

	_, err = FromAny(struct{}{})
	require.Error(t, err)
}
