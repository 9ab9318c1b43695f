package payload

import (
	"strings"

	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// Value is one document laid out under a Type: dense field slots plus
// a dynamic tail. Array fields hold more than one scalar per slot.
//
// A Value is owned by its namespace slot. Readers under the namespace
// read lock may keep references until the lock is released; writers
// replace the slot wholesale.
type Value struct {
	fields  [][]keyvalue.Value
	tail    map[string]any
	version model.Version
	free    bool
}

// NewValue creates an empty document for the schema.
func NewValue(t *Type) *Value {
	return &Value{fields: make([][]keyvalue.Value, t.NumFields())}
}

// Version returns the modification counter of the document.
func (v *Value) Version() model.Version { return v.version }

// SetVersion sets the modification counter.
func (v *Value) SetVersion(ver model.Version) { v.version = ver }

// IsFree reports whether the slot holds a deleted document.
func (v *Value) IsFree() bool { return v == nil || v.free }

// SetFree marks or unmarks the slot as deleted.
func (v *Value) SetFree(free bool) { v.free = free }

// Get returns the scalars stored in dense field slot i.
func (v *Value) Get(i int) []keyvalue.Value {
	if i < 0 || i >= len(v.fields) {
		return nil
	}
	return v.fields[i]
}

// GetFirst returns the first scalar of field i, or an undefined value
// for empty slots.
func (v *Value) GetFirst(i int) keyvalue.Value {
	vals := v.Get(i)
	if len(vals) == 0 {
		return keyvalue.Value{}
	}
	return vals[0]
}

// Set replaces the scalars of dense field slot i.
func (v *Value) Set(i int, vals ...keyvalue.Value) {
	for i >= len(v.fields) {
		v.fields = append(v.fields, nil)
	}
	v.fields[i] = vals
}

// Tail returns the dynamic field map, never nil.
func (v *Value) Tail() map[string]any {
	if v.tail == nil {
		v.tail = make(map[string]any)
	}
	return v.tail
}

// SetTail replaces the dynamic field map.
func (v *Value) SetTail(tail map[string]any) { v.tail = tail }

// GetByPath extracts values at a dotted JSON path from the dynamic
// tail. Arrays fan out: a path through a slice yields one value per
// element.
func (v *Value) GetByPath(path string) []keyvalue.Value {
	if v.tail == nil {
		return nil
	}
	return extractPath(v.tail, strings.Split(path, "."))
}

func extractPath(node any, segs []string) []keyvalue.Value {
	if len(segs) == 0 {
		return leafValues(node)
	}
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[segs[0]]
		if !ok {
			return nil
		}
		return extractPath(child, segs[1:])
	case []any:
		var out []keyvalue.Value
		for _, e := range n {
			out = append(out, extractPath(e, segs)...)
		}
		return out
	default:
		return nil
	}
}

func leafValues(node any) []keyvalue.Value {
	switch n := node.(type) {
	case []any:
		var out []keyvalue.Value
		for _, e := range n {
			out = append(out, leafValues(e)...)
		}
		return out
	case map[string]any:
		return nil
	default:
		kv, err := keyvalue.FromAny(n)
		if err != nil || kv.Type() == keyvalue.TypeUndefined {
			return nil
		}
		return []keyvalue.Value{kv}
	}
}

// Clone returns a deep copy of the document.
func (v *Value) Clone() *Value {
	c := &Value{
		fields:  make([][]keyvalue.Value, len(v.fields)),
		version: v.version,
		free:    v.free,
	}
	for i, f := range v.fields {
		c.fields[i] = append([]keyvalue.Value(nil), f...)
	}
	if v.tail != nil {
		c.tail = cloneTail(v.tail)
	}
	return c
}

func cloneTail(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case map[string]any:
			out[k] = cloneTail(x)
		case []any:
			out[k] = append([]any(nil), x...)
		default:
			out[k] = val
		}
	}
	return out
}
