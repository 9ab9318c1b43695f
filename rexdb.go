package rexdb

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/namespace"
	"github.com/hupe1980/rexdb/storage"
)

// IndexDef declares one index of a namespace.
type IndexDef = namespace.IndexDef

// DB owns a set of namespaces and coordinates queries that span more
// than one of them.
type DB struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace.Namespace
	nextNsID   int
	opts       options
	logger     *Logger
}

// Open creates a DB instance. When a storage path is configured the
// directory is created if needed; namespaces opened later reload their
// content from it.
func Open(optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)
	if opts.storagePath != "" {
		if err := os.MkdirAll(opts.storagePath, 0o755); err != nil {
			return nil, model.WrapError(model.CodeParams, err, "can't create storage dir %q", opts.storagePath)
		}
	}
	return &DB{
		namespaces: make(map[string]*namespace.Namespace),
		opts:       opts,
		logger:     opts.logger,
	}, nil
}

// OpenNamespace opens or creates a namespace and ensures the given
// index definitions exist on it. Definitions already present (created
// earlier or reloaded from storage) are matched by name and kept.
func (db *DB) OpenNamespace(name string, defs ...IndexDef) (*namespace.Namespace, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ns, ok := db.namespaces[name]
	if !ok {
		var st storage.Storage
		if db.opts.storagePath != "" {
			var err error
			st, err = storage.OpenBolt(filepath.Join(db.opts.storagePath, name+".db"))
			if err != nil {
				return nil, err
			}
		}
		var err error
		ns, err = db.newNamespace(name, st)
		if err != nil {
			if st != nil {
				_ = st.Close()
			}
			return nil, err
		}
		db.namespaces[name] = ns
	}

	existing := make(map[string]bool)
	for _, d := range ns.GetDefinition() {
		existing[d.Name] = true
	}
	for _, d := range defs {
		if existing[d.Name] {
			continue
		}
		if err := ns.AddIndex(d); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

func (db *DB) newNamespace(name string, st storage.Storage) (*namespace.Namespace, error) {
	nsOpts := []namespace.Option{
		namespace.WithLogger(db.logger.Logger),
		namespace.WithID(db.nextNsID),
	}
	if st != nil {
		nsOpts = append(nsOpts, namespace.WithStorage(st))
	}
	ns, err := namespace.New(name, nsOpts...)
	if err != nil {
		return nil, err
	}
	ns.SetQueriesLogLevel(db.opts.queriesLogLevel)
	db.nextNsID++
	return ns, nil
}

// Namespace returns an open namespace by name.
func (db *DB) Namespace(name string) (*namespace.Namespace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ns, ok := db.namespaces[name]
	if !ok {
		return nil, model.ErrNotFound("namespace %q is not opened", name)
	}
	return ns, nil
}

// CloseNamespace flushes and detaches a namespace, keeping its storage
// file for a later OpenNamespace.
func (db *DB) CloseNamespace(name string) error {
	db.mu.Lock()
	ns, ok := db.namespaces[name]
	delete(db.namespaces, name)
	db.mu.Unlock()
	if !ok {
		return model.ErrNotFound("namespace %q is not opened", name)
	}
	return ns.Close()
}

// DropNamespace closes a namespace and removes its storage file.
func (db *DB) DropNamespace(name string) error {
	if err := db.CloseNamespace(name); err != nil {
		return err
	}
	if db.opts.storagePath != "" {
		if err := os.Remove(filepath.Join(db.opts.storagePath, name+".db")); err != nil && !os.IsNotExist(err) {
			return model.WrapError(model.CodeLogic, err, "can't remove storage of namespace %q", name)
		}
	}
	db.logger.Info("namespace dropped", "namespace", name)
	return nil
}

// BackupNamespace streams a compressed copy of one namespace's storage
// to w.
func (db *DB) BackupNamespace(name string, w io.Writer) error {
	ns, err := db.Namespace(name)
	if err != nil {
		return err
	}
	return ns.Backup(w)
}

// RestoreNamespace creates a namespace from a backup stream. The
// namespace must not be opened yet; its storage file must not exist.
func (db *DB) RestoreNamespace(name string, r io.Reader) (*namespace.Namespace, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.namespaces[name]; ok {
		return nil, model.ErrConflict("namespace %q is already opened", name)
	}
	var st storage.Storage
	if db.opts.storagePath != "" {
		path := filepath.Join(db.opts.storagePath, name+".db")
		if _, err := os.Stat(path); err == nil {
			return nil, model.ErrConflict("storage of namespace %q already exists", name)
		}
		var err error
		st, err = storage.OpenBolt(path)
		if err != nil {
			return nil, err
		}
	} else {
		st = storage.NewMemory()
	}
	if err := storage.Restore(st, r); err != nil {
		_ = st.Close()
		return nil, err
	}
	ns, err := db.newNamespace(name, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	db.namespaces[name] = ns
	db.logger.Info("namespace restored", "namespace", name)
	return ns, nil
}
