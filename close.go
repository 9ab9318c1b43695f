package rexdb

import (
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/rexdb/namespace"
)

// Close flushes and closes every namespace. Namespaces flush in
// parallel; the first error is returned after all of them finished.
func (db *DB) Close() error {
	db.mu.Lock()
	namespaces := db.namespaces
	db.namespaces = make(map[string]*namespace.Namespace)
	db.mu.Unlock()

	var g errgroup.Group
	for _, ns := range namespaces {
		g.Go(ns.Close)
	}
	return g.Wait()
}
