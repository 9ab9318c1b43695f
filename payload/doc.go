// Package payload implements the storage layout of documents.
//
// A PayloadType is the fixed schema of a namespace: an ordered list of
// typed fields. A PayloadValue is one document laid out under that
// schema, a dense tuple of scalar (or array) field values plus an
// opaque tail of dynamic JSON-addressable fields.
//
// FieldsSet enumerates the fields an index covers, by dense position
// or by JSON path. TagsMatcher resolves field names and dotted paths
// into stable numeric tags so that stored documents survive schema
// renames.
package payload
