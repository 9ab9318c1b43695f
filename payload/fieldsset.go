package payload

import (
	"slices"
	"strconv"
	"strings"
)

// FieldsSet enumerates the fields an index covers. Dense fields are
// listed by position; unindexed fields by JSON path. Order matters:
// composite keys serialize their members in FieldsSet order.
type FieldsSet struct {
	fields []int
	paths  []string
}

// NewFieldsSet creates a FieldsSet over dense field positions.
func NewFieldsSet(fields ...int) FieldsSet {
	return FieldsSet{fields: fields}
}

// PushField appends a dense field position.
func (f *FieldsSet) PushField(idx int) { f.fields = append(f.fields, idx) }

// PushJSONPath appends a JSON path member.
func (f *FieldsSet) PushJSONPath(path string) { f.paths = append(f.paths, path) }

// Fields returns the dense field positions in order.
func (f FieldsSet) Fields() []int { return f.fields }

// JSONPaths returns the JSON path members in order.
func (f FieldsSet) JSONPaths() []string { return f.paths }

// Len returns the total member count.
func (f FieldsSet) Len() int { return len(f.fields) + len(f.paths) }

// HasJSONPaths reports whether any member is addressed by path.
func (f FieldsSet) HasJSONPaths() bool { return len(f.paths) > 0 }

// Contains reports whether the set covers dense field idx.
func (f FieldsSet) Contains(idx int) bool {
	return slices.Contains(f.fields, idx)
}

// ContainsAll reports whether the set covers every field of o.
func (f FieldsSet) ContainsAll(o FieldsSet) bool {
	for _, idx := range o.fields {
		if !f.Contains(idx) {
			return false
		}
	}
	return !o.HasJSONPaths()
}

// Equal reports whether both sets list the same members in the same
// order.
func (f FieldsSet) Equal(o FieldsSet) bool {
	return slices.Equal(f.fields, o.fields) && slices.Equal(f.paths, o.paths)
}

// String renders the set for diagnostics.
func (f FieldsSet) String() string {
	parts := make([]string, 0, f.Len())
	for _, idx := range f.fields {
		parts = append(parts, "#"+strconv.Itoa(idx))
	}
	parts = append(parts, f.paths...)
	return strings.Join(parts, "+")
}
