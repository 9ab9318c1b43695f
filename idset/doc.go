// Package idset implements posting lists: sorted sequences of
// document ids backed by roaring bitmaps.
//
// An IdSet supports union, intersection and difference, forward and
// reverse iteration, and a deferred insertion mode for bulk loads
// where ids arrive out of order.
package idset
