package storage

import (
	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hupe1980/rexdb/model"
)

// Marshal encodes v as an s2-compressed msgpack blob.
func Marshal(v any) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, model.WrapError(model.CodeNotValid, err, "can't encode value")
	}
	return s2.Encode(nil, raw), nil
}

// Unmarshal decodes an s2-compressed msgpack blob into v.
func Unmarshal(data []byte, v any) error {
	raw, err := s2.Decode(nil, data)
	if err != nil {
		return model.WrapError(model.CodeNotValid, err, "can't decompress value")
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return model.WrapError(model.CodeNotValid, err, "can't decode value")
	}
	return nil
}
