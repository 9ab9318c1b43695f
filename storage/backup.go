package storage

import (
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/rexdb/model"
)

// backupMagic heads every backup stream.
var backupMagic = []byte("RXB1")

// Backup writes every key/value pair of s into an lz4-framed stream.
// The caller is responsible for quiescing writers for a consistent
// snapshot.
func Backup(s Storage, w io.Writer) error {
	zw := lz4.NewWriter(w)
	if _, err := zw.Write(backupMagic); err != nil {
		return model.WrapError(model.CodeNotValid, err, "backup write failed")
	}

	var lenBuf [8]byte
	err := s.Iterate(nil, func(key, value []byte) error {
		binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(key)))
		binary.BigEndian.PutUint32(lenBuf[4:], uint32(len(value)))
		if _, err := zw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := zw.Write(key); err != nil {
			return err
		}
		_, err := zw.Write(value)
		return err
	})
	if err != nil {
		return model.WrapError(model.CodeNotValid, err, "backup write failed")
	}
	return zw.Close()
}

// Restore loads an lz4-framed backup stream into s, replacing
// whatever the stream carries key by key.
func Restore(s Storage, r io.Reader) error {
	zr := lz4.NewReader(r)

	magic := make([]byte, len(backupMagic))
	if _, err := io.ReadFull(zr, magic); err != nil || string(magic) != string(backupMagic) {
		return model.ErrNotValid("not a backup stream")
	}

	updates := NewUpdates()
	var lenBuf [8]byte
	for {
		if _, err := io.ReadFull(zr, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return model.WrapError(model.CodeNotValid, err, "truncated backup stream")
		}
		keyLen := binary.BigEndian.Uint32(lenBuf[:4])
		valLen := binary.BigEndian.Uint32(lenBuf[4:])
		key := make([]byte, keyLen)
		value := make([]byte, valLen)
		if _, err := io.ReadFull(zr, key); err != nil {
			return model.WrapError(model.CodeNotValid, err, "truncated backup stream")
		}
		if _, err := io.ReadFull(zr, value); err != nil {
			return model.WrapError(model.CodeNotValid, err, "truncated backup stream")
		}
		updates.Put(key, value)

		if updates.Len() >= 1000 {
			if err := s.Write(updates); err != nil {
				return err
			}
			updates.Reset()
		}
	}
	if updates.Len() > 0 {
		return s.Write(updates)
	}
	return nil
}
