// Package rexdb provides an embeddable in-memory document database
// with secondary indexes and a SQL-like query builder.
//
// Documents live in namespaces. A namespace owns a flat schema derived
// from its index declarations, keeps every document in memory and
// optionally mirrors them into a persistent storage backend.
//
// # Quick Start
//
//	db, _ := rexdb.Open(rexdb.WithStoragePath("./data"))
//	defer db.Close()
//
//	ns, _ := db.OpenNamespace("items",
//		rexdb.IndexDef{Name: "id", Kind: index.KindHash, FieldType: keyvalue.TypeInt, Opts: index.Opts{PK: true, Unique: true}},
//		rexdb.IndexDef{Name: "price", Kind: index.KindTree, FieldType: keyvalue.TypeInt},
//	)
//
//	ns.UpsertMap(map[string]any{"id": 1, "price": 500})
//
//	qr, _ := db.Select(query.New("items").
//		Where("price", model.CondGe, 100).
//		Sort("price", false).
//		Limit(10))
//
// # Queries
//
// Queries combine indexed predicates with And/Or/Not, sort on ordered
// indexes or arbitrary fields, paginate, aggregate and join other
// namespaces. Single-namespace queries can go straight to
// Namespace.Select; queries with joins or merged sub-queries go
// through DB.Select, which coordinates locking across the involved
// namespaces.
//
// # Durability
//
// Namespaces opened on a DB with a storage path are backed by bbolt
// files, one per namespace. Writes are batched and flushed on
// threshold and on Close. Backup and Restore stream a compressed copy
// of one namespace's storage.
package rexdb
