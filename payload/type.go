package payload

import (
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// Field is one column of a namespace schema.
type Field struct {
	Name    string
	Type    keyvalue.Type
	IsArray bool
	// JSONPath is the location of the field inside the document
	// body. Defaults to the field name.
	JSONPath string
}

// Type is the fixed schema of a namespace: an ordered field list with
// name lookup. Fields start at index 0 and map 1:1 onto PayloadValue
// slots.
type Type struct {
	name   string
	fields []Field
	byName map[string]int
	byPath map[string]int
}

// NewType creates an empty schema for the named namespace.
func NewType(name string) *Type {
	return &Type{
		name:   name,
		byName: make(map[string]int),
		byPath: make(map[string]int),
	}
}

// Name returns the namespace name the schema belongs to.
func (t *Type) Name() string { return t.name }

// NumFields returns the number of dense fields.
func (t *Type) NumFields() int { return len(t.fields) }

// Field returns the schema of the dense field at position i.
func (t *Type) Field(i int) Field { return t.fields[i] }

// FieldByName resolves a field name to its dense position.
func (t *Type) FieldByName(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// FieldByJSONPath resolves a JSON path to a dense position, if some
// field is stored at that path.
func (t *Type) FieldByJSONPath(path string) (int, bool) {
	i, ok := t.byPath[path]
	return i, ok
}

// Add appends a field to the schema. Re-adding an existing name with
// an identical definition is a no-op; a differing definition is a
// conflict.
func (t *Type) Add(f Field) (int, error) {
	if f.JSONPath == "" {
		f.JSONPath = f.Name
	}
	if i, ok := t.byName[f.Name]; ok {
		if t.fields[i] != f {
			return 0, model.ErrConflict("field %q redefined with different options", f.Name)
		}
		return i, nil
	}
	i := len(t.fields)
	t.fields = append(t.fields, f)
	t.byName[f.Name] = i
	t.byPath[f.JSONPath] = i
	return i, nil
}

// Clone returns a deep copy of the schema. The namespace registry
// copies schemas before structural changes so that running queries
// keep a stable view.
func (t *Type) Clone() *Type {
	c := NewType(t.name)
	c.fields = append([]Field(nil), t.fields...)
	for k, v := range t.byName {
		c.byName[k] = v
	}
	for k, v := range t.byPath {
		c.byPath[k] = v
	}
	return c
}
