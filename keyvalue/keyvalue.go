package keyvalue

import (
	"fmt"
	"hash/maphash"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/rexdb/model"
)

// Type identifies the concrete variant held by a Value.
type Type int

// Value types.
const (
	TypeUndefined Type = iota
	TypeInt
	TypeInt64
	TypeDouble
	TypeString
	TypeComposite
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeComposite:
		return "composite"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Value is a variant scalar: a query argument, an index key, or one
// dense field of a stored row.
//
// The zero Value has TypeUndefined and compares equal only to other
// undefined values.
type Value struct {
	typ Type
	i   int64
	f   float64
	s   string

	// children is the unmaterialized form of a composite: the raw
	// sub-values in composite field order. packed is the serialized
	// tuple produced once the composite has been bound to a schema.
	children []Value
	packed   string
}

// Int creates an int Value.
func Int(v int) Value { return Value{typ: TypeInt, i: int64(int32(v))} }

// Int64 creates an int64 Value.
func Int64(v int64) Value { return Value{typ: TypeInt64, i: v} }

// Double creates a double Value.
func Double(v float64) Value { return Value{typ: TypeDouble, f: v} }

// String creates a string Value.
func String(v string) Value { return Value{typ: TypeString, s: v} }

// Composite creates an unmaterialized composite Value from its child
// sequence.
func Composite(children ...Value) Value {
	return Value{typ: TypeComposite, children: children}
}

// PackedComposite creates a composite Value already serialized under
// its index's field ordering. Packed composites compare and hash over
// the serialized tuple.
func PackedComposite(packed []byte) Value {
	return Value{typ: TypeComposite, packed: string(packed)}
}

// FromAny converts a dynamically typed value (as produced by JSON or
// msgpack decoding) into a Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{}, nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case int:
		return Int64(int64(x)), nil
	case int8:
		return Int(int(x)), nil
	case int16:
		return Int(int(x)), nil
	case int32:
		return Int(int(x)), nil
	case int64:
		return Int64(x), nil
	case uint8:
		return Int(int(x)), nil
	case uint16:
		return Int(int(x)), nil
	case uint32:
		return Int64(int64(x)), nil
	case uint64:
		return Int64(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case string:
		return String(x), nil
	default:
		return Value{}, model.ErrParams("unsupported value type %T", v)
	}
}

// Type returns the variant tag.
func (v Value) Type() Type { return v.typ }

// IsComposite reports whether the value is a composite.
func (v Value) IsComposite() bool { return v.typ == TypeComposite }

// IsPacked reports whether a composite value has been serialized
// against a schema.
func (v Value) IsPacked() bool { return v.typ == TypeComposite && v.packed != "" }

// Children returns the child sequence of an unmaterialized composite.
func (v Value) Children() []Value { return v.children }

// Packed returns the serialized tuple of a materialized composite.
func (v Value) Packed() string { return v.packed }

// Int returns the value as an int, converting if necessary.
func (v Value) Int() int {
	switch v.typ {
	case TypeInt, TypeInt64:
		return int(v.i)
	case TypeDouble:
		return int(v.f)
	case TypeString:
		n, _ := strconv.Atoi(strings.TrimSpace(v.s))
		return n
	default:
		return 0
	}
}

// Int64 returns the value as an int64, converting if necessary.
func (v Value) Int64() int64 {
	switch v.typ {
	case TypeInt, TypeInt64:
		return v.i
	case TypeDouble:
		return int64(v.f)
	case TypeString:
		n, _ := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		return n
	default:
		return 0
	}
}

// Double returns the value as a float64, converting if necessary.
func (v Value) Double() float64 {
	switch v.typ {
	case TypeInt, TypeInt64:
		return float64(v.i)
	case TypeDouble:
		return v.f
	case TypeString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f
	default:
		return 0
	}
}

// Text returns the value rendered as a string.
func (v Value) Text() string {
	switch v.typ {
	case TypeInt, TypeInt64:
		return strconv.FormatInt(v.i, 10)
	case TypeDouble:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case TypeString:
		return v.s
	case TypeComposite:
		if v.packed != "" {
			return fmt.Sprintf("composite(%d bytes)", len(v.packed))
		}
		parts := make([]string, len(v.children))
		for i, c := range v.children {
			parts[i] = c.Text()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// Interface returns the value as its natural Go type.
func (v Value) Interface() any {
	switch v.typ {
	case TypeInt:
		return int(v.i)
	case TypeInt64:
		return v.i
	case TypeDouble:
		return v.f
	case TypeString:
		return v.s
	case TypeComposite:
		if v.packed != "" {
			return []byte(v.packed)
		}
		out := make([]any, len(v.children))
		for i, c := range v.children {
			out[i] = c.Interface()
		}
		return out
	default:
		return nil
	}
}

// Convert casts the value to the target type. Converting to the same
// type is the identity, so Convert is idempotent. Composite targets
// are rejected here: packing a composite requires a field schema and
// is done by the payload package.
func (v Value) Convert(t Type) (Value, error) {
	if v.typ == t || t == TypeUndefined {
		return v, nil
	}
	switch t {
	case TypeInt:
		return Int(v.Int()), nil
	case TypeInt64:
		return Int64(v.Int64()), nil
	case TypeDouble:
		return Double(v.Double()), nil
	case TypeString:
		return String(v.Text()), nil
	case TypeComposite:
		return Value{}, model.ErrLogic("can't convert %s to composite without a field schema", v.typ)
	default:
		return Value{}, model.ErrLogic("can't convert %s to %s", v.typ, t)
	}
}

// Compare orders two values of compatible types. String comparison
// follows the collate mode; numeric types compare by magnitude.
// Composite comparison is over the packed tuple when both sides are
// packed, structural over children otherwise.
func (v Value) Compare(o Value, collate CollateMode) int {
	if v.typ == TypeComposite || o.typ == TypeComposite {
		return v.compareComposite(o, collate)
	}
	if v.typ == TypeString && o.typ == TypeString {
		return CollateCompare(v.s, o.s, collate)
	}
	// Mixed or numeric comparison goes through float64.
	a, b := v.Double(), o.Double()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Value) compareComposite(o Value, collate CollateMode) int {
	if v.packed != "" && o.packed != "" {
		return strings.Compare(v.packed, o.packed)
	}
	n := len(v.children)
	if len(o.children) < n {
		n = len(o.children)
	}
	for i := 0; i < n; i++ {
		if c := v.children[i].Compare(o.children[i], collate); c != 0 {
			return c
		}
	}
	return len(v.children) - len(o.children)
}

// Equal reports value equality under the collate mode.
func (v Value) Equal(o Value, collate CollateMode) bool {
	return v.Compare(o, collate) == 0
}

// Hash mixes the value into h. Values that are Equal under
// CollateNone hash identically.
func (v Value) Hash(h *maphash.Hash) {
	// Numeric types share one tag so that equal numbers of different
	// types collide.
	switch v.typ {
	case TypeInt, TypeInt64, TypeDouble:
		h.WriteByte(byte(TypeInt64))
	default:
		h.WriteByte(byte(v.typ))
	}
	switch v.typ {
	case TypeInt, TypeInt64:
		var b [8]byte
		putUint64(b[:], uint64(v.i))
		h.Write(b[:])
	case TypeDouble:
		// Integral doubles hash like their int64 counterpart so that
		// coerced query values land on the same bucket.
		if v.f == float64(int64(v.f)) {
			var b [8]byte
			putUint64(b[:], uint64(int64(v.f)))
			h.Write(b[:])
			return
		}
		var b [8]byte
		putUint64(b[:], math.Float64bits(v.f))
		h.Write(b[:])
	case TypeString:
		h.WriteString(v.s)
	case TypeComposite:
		if v.packed != "" {
			h.WriteString(v.packed)
			return
		}
		for _, c := range v.children {
			c.Hash(h)
		}
	}
}

func putUint64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// AppendBinary writes a self-delimiting, type-tagged encoding of the
// value to buf. Two values of the same type encode identically iff
// they are equal under CollateNone, so the encoding doubles as a map
// key for same-typed values. Values of different types never encode
// alike, even where Compare reports them equal (Int(3), Double(3)).
func (v Value) AppendBinary(buf []byte) []byte {
	buf = append(buf, byte(v.typ))
	switch v.typ {
	case TypeInt, TypeInt64:
		var b [8]byte
		putUint64(b[:], uint64(v.i))
		buf = append(buf, b[:]...)
	case TypeDouble:
		var b [8]byte
		putUint64(b[:], math.Float64bits(v.f))
		buf = append(buf, b[:]...)
	case TypeString:
		var b [4]byte
		b[0] = byte(len(v.s))
		b[1] = byte(len(v.s) >> 8)
		b[2] = byte(len(v.s) >> 16)
		b[3] = byte(len(v.s) >> 24)
		buf = append(buf, b[:]...)
		buf = append(buf, v.s...)
	case TypeComposite:
		if v.packed != "" {
			buf = append(buf, v.packed...)
			return buf
		}
		for _, c := range v.children {
			buf = c.AppendBinary(buf)
		}
	}
	return buf
}

// Size returns the approximate in-memory footprint in bytes. Cache
// budgets use it to account for stored key values.
func (v Value) Size() int {
	n := 24
	n += len(v.s) + len(v.packed)
	for _, c := range v.children {
		n += c.Size()
	}
	return n
}
