package storage

import (
	"encoding/binary"

	"github.com/hupe1980/rexdb/model"
)

// Well-known key prefixes of the namespace layout.
const (
	// ItemPrefix precedes a big-endian item id.
	ItemPrefix = "I"
	// SchemaKey holds the serialized namespace definition.
	SchemaKey = "S"
	// TagsKey holds the serialized tagsmatcher.
	TagsKey = "T"
	// MetaPrefix precedes a user meta key.
	MetaPrefix = "M:"
	// CacheModeKey holds the namespace cache mode byte.
	CacheModeKey = "C"
)

// ItemKey builds the storage key of an item.
func ItemKey(id model.IdType) []byte {
	key := make([]byte, 1, 5)
	key[0] = ItemPrefix[0]
	return binary.BigEndian.AppendUint32(key, uint32(id))
}

// MetaKey builds the storage key of a user meta entry.
func MetaKey(key string) []byte {
	return append([]byte(MetaPrefix), key...)
}

// Storage is the key/value collaborator of a namespace. Writes are
// always batched; reads see the result of all previously flushed
// batches. Implementations must be safe for one writer plus
// concurrent readers.
type Storage interface {
	// Read returns the value of key, or (nil, nil) when absent.
	Read(key []byte) ([]byte, error)

	// Write applies a batch atomically.
	Write(updates *UpdatesCollection) error

	// Iterate walks all keys with the prefix in ascending key order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	Close() error
}

type kvPair struct {
	key   []byte
	value []byte
}

// UpdatesCollection accumulates puts and deletes for one atomic
// batch.
type UpdatesCollection struct {
	puts    []kvPair
	deletes [][]byte
}

// NewUpdates creates an empty batch.
func NewUpdates() *UpdatesCollection {
	return &UpdatesCollection{}
}

// Put schedules a write. Key and value are copied.
func (u *UpdatesCollection) Put(key, value []byte) {
	u.puts = append(u.puts, kvPair{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete schedules a removal. Key is copied.
func (u *UpdatesCollection) Delete(key []byte) {
	u.deletes = append(u.deletes, append([]byte(nil), key...))
}

// Len returns the number of scheduled operations.
func (u *UpdatesCollection) Len() int {
	return len(u.puts) + len(u.deletes)
}

// Reset empties the batch for reuse.
func (u *UpdatesCollection) Reset() {
	u.puts = u.puts[:0]
	u.deletes = u.deletes[:0]
}
