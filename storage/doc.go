// Package storage defines the key/value collaborator a namespace
// persists through, plus an embedded bbolt implementation and an
// in-memory one for tests.
//
// The namespace writes s2-compressed msgpack blobs under short
// prefixed keys ("I" items, "S" schema, "T" tagsmatcher, "M:" meta,
// "C" cache mode) and batches updates in an UpdatesCollection flushed
// on demand.
package storage
