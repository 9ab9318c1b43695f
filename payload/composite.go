package payload

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// PackComposite materializes a composite key from its child sequence
// under the schema and the composite index's field ordering. The
// child count must match the composite arity; members addressed by
// JSON path cannot be packed.
func PackComposite(t *Type, fields FieldsSet, children []keyvalue.Value) (keyvalue.Value, error) {
	if fields.HasJSONPaths() {
		return keyvalue.Value{}, model.ErrConflict("composite over non-indexed json path is not supported")
	}
	if len(children) != len(fields.Fields()) {
		return keyvalue.Value{}, model.ErrLogic(
			"composite key arity mismatch: %d values for %d fields", len(children), len(fields.Fields()))
	}
	buf := make([]byte, 0, 16*len(children))
	for i, fieldIdx := range fields.Fields() {
		conv, err := children[i].Convert(t.Field(fieldIdx).Type)
		if err != nil {
			return keyvalue.Value{}, err
		}
		buf = appendValue(buf, conv)
	}
	return keyvalue.PackedComposite(buf), nil
}

// PackFromValue builds the composite key of a stored document: the
// first scalar of each member field, serialized in FieldsSet order.
func PackFromValue(t *Type, fields FieldsSet, v *Value) keyvalue.Value {
	buf := make([]byte, 0, 16*len(fields.Fields()))
	for _, fieldIdx := range fields.Fields() {
		buf = appendValue(buf, v.GetFirst(fieldIdx))
	}
	return keyvalue.PackedComposite(buf)
}

// appendValue writes a self-delimiting, type-tagged encoding of a
// scalar. Two values of the same type encode identically iff they are
// equal; values of different types never encode alike, so callers
// convert to the field type first (PackComposite does).
func appendValue(buf []byte, v keyvalue.Value) []byte {
	buf = append(buf, byte(v.Type()))
	switch v.Type() {
	case keyvalue.TypeInt, keyvalue.TypeInt64:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.Int64()))
	case keyvalue.TypeDouble:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Double()))
	case keyvalue.TypeString:
		s := v.Text()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}
