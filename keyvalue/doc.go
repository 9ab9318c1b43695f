// Package keyvalue implements the variant scalar carried by query
// values and index keys.
//
// A Value is a tagged union over {int, int64, double, string,
// composite}. Scalars convert between each other with lossy-tolerant
// casts; composites hold an ordered child sequence until they are
// packed against a concrete field schema by the payload package.
//
// Comparison of string values is collate-aware: bytewise, ASCII
// case-insensitive, UTF-8 case-folded, or numeric-prefix ordering.
package keyvalue
