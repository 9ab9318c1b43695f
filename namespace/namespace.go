package namespace

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/rexdb/idset"
	cache "github.com/hupe1980/rexdb/internal/cache"
	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/storage"
)

const (
	// queryCacheSize bounds the cached-total cache per namespace.
	queryCacheSize = 2 << 20
	// flushThreshold batches storage writes until this many pending
	// operations accumulate.
	flushThreshold = 1000
	// joinCacheEntries bounds the per-namespace join probe cache.
	joinCacheEntries = 4096
)

// IndexDef declares one index (and, for non-composite kinds, the
// payload field it covers).
type IndexDef struct {
	Name      string
	JSONPath  string
	Kind      index.Kind
	FieldType keyvalue.Type
	Opts      index.Opts
	// Fields lists the member field names of composite kinds.
	Fields []string
}

type joinCacheKey struct {
	fingerprint uint64
	values      string
}

// CacheMode says how the namespace serves cached query totals.
type CacheMode uint8

const (
	// CacheModeOn admits a total after its fingerprint repeats.
	CacheModeOn CacheMode = iota
	// CacheModeAggressive stores totals on first sight.
	CacheModeAggressive
	// CacheModeOff disables the cached-total cache.
	CacheModeOff
)

// Namespace is one document collection: schema, items, indexes,
// caches and the storage binding.
type Namespace struct {
	name     string
	id       int
	instance uuid.UUID

	mtx      sync.RWMutex
	cacheMtx sync.Mutex

	payloadType *payload.Type
	tags        *payload.TagsMatcher

	items []*payload.Value
	free  *idset.IdSet

	indexes       []index.Index
	indexesByName map[string]int
	defs          []IndexDef
	pkIndex       int

	sortedQueriesCount atomic.Int64

	queryCache *cache.QueryCache
	joinCache  *lru.Cache[joinCacheKey, []model.IdType]

	storage        storage.Storage
	updates        *storage.UpdatesCollection
	unflushedCount int

	cacheMode CacheMode

	perfEnabled atomic.Bool
	selectCount atomic.Int64
	selectNanos atomic.Int64
	upsertCount atomic.Int64
	upsertNanos atomic.Int64
	deleteCount atomic.Int64
	commitCount atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	queriesLogLevel slog.Level
	logger          *slog.Logger
}

// Option configures a namespace.
type Option func(*Namespace)

// WithStorage binds the namespace to a persistent backend.
func WithStorage(s storage.Storage) Option {
	return func(ns *Namespace) { ns.storage = s }
}

// WithLogger sets the namespace logger.
func WithLogger(l *slog.Logger) Option {
	return func(ns *Namespace) { ns.logger = l }
}

// WithID sets the namespace position used in merged result refs.
func WithID(id int) Option {
	return func(ns *Namespace) { ns.id = id }
}

// New creates an empty namespace. When a storage backend is attached
// and holds a previous definition, schema and items are loaded from
// it.
func New(name string, opts ...Option) (*Namespace, error) {
	ns := &Namespace{
		name:            name,
		instance:        uuid.New(),
		payloadType:     payload.NewType(name),
		tags:            payload.NewTagsMatcher(),
		free:            idset.New(),
		indexesByName:   make(map[string]int),
		pkIndex:         model.IndexNotSet,
		queryCache:      cache.NewQueryCache(queryCacheSize),
		updates:         storage.NewUpdates(),
		logger:          slog.Default(),
		queriesLogLevel: slog.LevelDebug,
	}
	jc, err := lru.New[joinCacheKey, []model.IdType](joinCacheEntries)
	if err != nil {
		return nil, model.WrapError(model.CodeLogic, err, "can't init join cache")
	}
	ns.joinCache = jc
	for _, opt := range opts {
		opt(ns)
	}
	ns.logger = ns.logger.With(
		slog.String("namespace", name),
		slog.String("instance", ns.instance.String()))
	if ns.storage != nil {
		if err := ns.loadFromStorage(); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Instance returns the id of this in-memory incarnation. It changes
// on every open, so two handles with equal instance ids share state.
func (ns *Namespace) Instance() uuid.UUID { return ns.instance }

// AddIndex registers an index. Non-composite definitions also declare
// the payload field they cover. Adding an index over existing items
// backfills it.
func (ns *Namespace) AddIndex(def IndexDef) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	return ns.addIndexLocked(def, true)
}

func (ns *Namespace) addIndexLocked(def IndexDef, persist bool) error {
	if _, ok := ns.indexesByName[def.Name]; ok {
		return model.ErrParams("index %q already exists in namespace %q", def.Name, ns.name)
	}
	if def.Opts.PK && ns.pkIndex != model.IndexNotSet {
		return model.ErrParams("namespace %q already has a primary key", ns.name)
	}

	var idx index.Index
	if def.Kind.IsComposite() {
		if len(def.Fields) < 2 {
			return model.ErrParams("composite index %q needs at least two fields", def.Name)
		}
		fs := payload.NewFieldsSet()
		for _, fname := range def.Fields {
			no, ok := ns.payloadType.FieldByName(fname)
			if !ok {
				return model.ErrParams("composite index %q references unknown field %q", def.Name, fname)
			}
			fs.PushField(no)
		}
		switch def.Kind {
		case index.KindCompositeHash:
			idx = index.NewCompositeHash(def.Name, def.Opts, fs)
		default:
			idx = index.NewCompositeTree(def.Name, def.Opts, fs)
		}
	} else {
		jsonPath := def.JSONPath
		if jsonPath == "" {
			jsonPath = def.Name
		}
		fieldType := def.FieldType
		if def.Kind == index.KindFullText {
			fieldType = keyvalue.TypeString
		}
		no, err := ns.payloadType.Add(payload.Field{
			Name:     def.Name,
			Type:     fieldType,
			IsArray:  def.Opts.Array,
			JSONPath: jsonPath,
		})
		if err != nil {
			return err
		}
		ns.tags.NameToTag(def.Name)
		fs := payload.NewFieldsSet(no)
		switch def.Kind {
		case index.KindTree:
			idx = index.NewTree(def.Name, fieldType, def.Opts, fs)
		case index.KindFullText:
			idx = index.NewFullText(def.Name, def.Opts, fs)
		default:
			idx = index.NewHash(def.Name, fieldType, def.Opts, fs)
		}
		ns.growItems(no)
	}

	pos := len(ns.indexes)
	ns.indexes = append(ns.indexes, idx)
	ns.indexesByName[def.Name] = pos
	ns.defs = append(ns.defs, def)
	if def.Opts.PK {
		ns.pkIndex = pos
	}

	for id, item := range ns.items {
		if item.IsFree() {
			continue
		}
		for _, key := range index.KeysOf(idx, ns.payloadType, item) {
			idx.Upsert(key, model.IdType(id))
		}
	}
	ns.invalidateLocked()

	if persist && ns.storage != nil {
		if err := ns.saveDefinitionLocked(); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex removes an index. The covered field stays in the schema;
// later predicates on it run as comparator scans.
func (ns *Namespace) DropIndex(name string) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	pos, ok := ns.indexesByName[name]
	if !ok {
		return model.ErrNotFound("index %q not found in namespace %q", name, ns.name)
	}
	if pos == ns.pkIndex {
		return model.ErrLogic("can't drop primary key index %q", name)
	}
	ns.indexes = append(ns.indexes[:pos], ns.indexes[pos+1:]...)
	ns.defs = append(ns.defs[:pos], ns.defs[pos+1:]...)
	delete(ns.indexesByName, name)
	for n, p := range ns.indexesByName {
		if p > pos {
			ns.indexesByName[n] = p - 1
		}
	}
	if ns.pkIndex > pos {
		ns.pkIndex--
	}
	ns.invalidateLocked()
	ns.logger.Info("index dropped", "index", name)
	if ns.storage != nil {
		return ns.saveDefinitionLocked()
	}
	return nil
}

// ConfigureIndex replaces the options of an existing index and
// rebuilds it. The PK and Array flags are part of the schema layout
// and can't change here.
func (ns *Namespace) ConfigureIndex(name string, opts index.Opts) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	pos, ok := ns.indexesByName[name]
	if !ok {
		return model.ErrNotFound("index %q not found in namespace %q", name, ns.name)
	}
	old := ns.indexes[pos]
	if opts.PK != old.Opts().PK {
		return model.ErrLogic("can't change the primary key flag of index %q", name)
	}
	if opts.Array != old.Opts().Array {
		return model.ErrLogic("can't change the array flag of index %q", name)
	}

	def := ns.defs[pos]
	def.Opts = opts
	var idx index.Index
	switch def.Kind {
	case index.KindCompositeHash:
		idx = index.NewCompositeHash(name, opts, old.Fields())
	case index.KindCompositeTree:
		idx = index.NewCompositeTree(name, opts, old.Fields())
	case index.KindTree:
		idx = index.NewTree(name, old.KeyType(), opts, old.Fields())
	case index.KindFullText:
		idx = index.NewFullText(name, opts, old.Fields())
	default:
		idx = index.NewHash(name, old.KeyType(), opts, old.Fields())
	}
	for id, item := range ns.items {
		if item.IsFree() {
			continue
		}
		for _, key := range index.KeysOf(idx, ns.payloadType, item) {
			idx.Upsert(key, model.IdType(id))
		}
	}
	ns.indexes[pos] = idx
	ns.defs[pos] = def
	ns.invalidateLocked()
	if ns.storage != nil {
		return ns.saveDefinitionLocked()
	}
	return nil
}

// growItems re-layouts existing documents after a schema extension.
func (ns *Namespace) growItems(fieldNo int) {
	for _, item := range ns.items {
		if item == nil {
			continue
		}
		item.Set(fieldNo)
	}
}

// PayloadType returns the namespace schema.
func (ns *Namespace) PayloadType() *payload.Type { return ns.payloadType }

// Doc is a staged document being prepared for Upsert.
type Doc struct {
	ns    *Namespace
	value *payload.Value
}

// NewDoc creates an empty staged document.
func (ns *Namespace) NewDoc() *Doc {
	return &Doc{ns: ns, value: payload.NewValue(ns.payloadType)}
}

// SetField assigns one dense field, coercing values to the field type.
func (d *Doc) SetField(name string, values ...any) error {
	no, ok := d.ns.payloadType.FieldByName(name)
	if !ok {
		return model.ErrParams("field %q is not defined in namespace %q", name, d.ns.name)
	}
	f := d.ns.payloadType.Field(no)
	if len(values) > 1 && !f.IsArray {
		return model.ErrParams("field %q is not an array", name)
	}
	kvs := make([]keyvalue.Value, 0, len(values))
	for _, v := range values {
		kv, err := keyvalue.FromAny(v)
		if err != nil {
			return err
		}
		kv, err = kv.Convert(f.Type)
		if err != nil {
			return model.WrapError(model.CodeParams, err, "field %q", name)
		}
		kvs = append(kvs, kv)
	}
	d.value.Set(no, kvs...)
	return nil
}

// FromMap fills the document from a generic map: schema fields go into
// dense slots, everything else into the tail.
func (d *Doc) FromMap(m map[string]any) error {
	tail := make(map[string]any)
	for k, v := range m {
		if _, ok := d.ns.payloadType.FieldByName(k); ok {
			vals, isSlice := v.([]any)
			if isSlice {
				if err := d.SetField(k, vals...); err != nil {
					return err
				}
			} else if err := d.SetField(k, v); err != nil {
				return err
			}
			continue
		}
		d.ns.tags.NameToTag(k)
		tail[k] = v
	}
	if len(tail) > 0 {
		d.value.SetTail(tail)
	}
	return nil
}

// Upsert inserts the document or replaces the existing one with the
// same primary key.
func (ns *Namespace) Upsert(d *Doc) (model.IdType, error) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	return ns.upsertLocked(d.value, upsertAny)
}

// UpsertMap is Upsert over a generic document map.
func (ns *Namespace) UpsertMap(m map[string]any) (model.IdType, error) {
	d := ns.NewDoc()
	if err := d.FromMap(m); err != nil {
		return 0, err
	}
	return ns.Upsert(d)
}

// Insert stores a new document; a duplicate primary key is a conflict.
func (ns *Namespace) Insert(d *Doc) (model.IdType, error) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	return ns.upsertLocked(d.value, upsertInsert)
}

// Update replaces an existing document; a missing primary key is an
// error.
func (ns *Namespace) Update(d *Doc) (model.IdType, error) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	return ns.upsertLocked(d.value, upsertUpdate)
}

type upsertMode int

const (
	upsertAny upsertMode = iota
	upsertInsert
	upsertUpdate
)

func (ns *Namespace) pkOf(v *payload.Value) (keyvalue.Value, error) {
	if ns.pkIndex == model.IndexNotSet {
		return keyvalue.Value{}, model.ErrLogic("namespace %q has no primary key index", ns.name)
	}
	keys := index.KeysOf(ns.indexes[ns.pkIndex], ns.payloadType, v)
	if len(keys) == 0 {
		return keyvalue.Value{}, model.ErrParams("document has no primary key value")
	}
	return keys[0], nil
}

// findByPK resolves a primary key to its slot.
func (ns *Namespace) findByPK(key keyvalue.Value) (model.IdType, bool) {
	res, err := ns.indexes[ns.pkIndex].SelectKey(
		[]keyvalue.Value{key}, model.CondEq, 0, index.HintForceIdset)
	if err != nil {
		return 0, false
	}
	for _, r := range res.Results {
		if r.IDs != nil {
			if id, ok := r.IDs.Minimum(); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func (ns *Namespace) upsertLocked(v *payload.Value, mode upsertMode) (model.IdType, error) {
	if ns.perfEnabled.Load() {
		defer func(t0 time.Time) { ns.upsertNanos.Add(time.Since(t0).Nanoseconds()) }(time.Now())
	}
	pk, err := ns.pkOf(v)
	if err != nil {
		return 0, err
	}

	id, exists := ns.findByPK(pk)
	switch {
	case exists && mode == upsertInsert:
		return 0, model.ErrConflict("document with primary key %q already exists", pk.Text())
	case !exists && mode == upsertUpdate:
		return 0, model.ErrNotFound("document with primary key %q not found", pk.Text())
	}

	if exists {
		old := ns.items[id]
		for _, idx := range ns.indexes {
			for _, key := range index.KeysOf(idx, ns.payloadType, old) {
				idx.Delete(key, id)
			}
		}
		v.SetVersion(old.Version() + 1)
	} else {
		if reused, ok := ns.free.Minimum(); ok {
			id = reused
			ns.free.Remove(id)
		} else {
			id = model.IdType(len(ns.items))
			ns.items = append(ns.items, nil)
		}
		v.SetVersion(1)
	}

	ns.items[id] = v
	for _, idx := range ns.indexes {
		for _, key := range index.KeysOf(idx, ns.payloadType, v) {
			idx.Upsert(key, id)
		}
	}
	ns.invalidateLocked()
	ns.upsertCount.Add(1)

	if ns.storage != nil {
		blob, err := storage.Marshal(encodeItem(ns.payloadType, v))
		if err != nil {
			return 0, err
		}
		ns.updates.Put(storage.ItemKey(id), blob)
		if err := ns.flushLocked(false); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Delete removes the document with the staged primary key.
func (ns *Namespace) Delete(d *Doc) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	pk, err := ns.pkOf(d.value)
	if err != nil {
		return err
	}
	id, ok := ns.findByPK(pk)
	if !ok {
		return model.ErrNotFound("document with primary key %q not found", pk.Text())
	}
	return ns.deleteLocked(id)
}

func (ns *Namespace) deleteLocked(id model.IdType) error {
	v := ns.items[id]
	for _, idx := range ns.indexes {
		for _, key := range index.KeysOf(idx, ns.payloadType, v) {
			idx.Delete(key, id)
		}
	}
	v.SetFree(true)
	ns.free.Add(id)
	ns.invalidateLocked()
	ns.deleteCount.Add(1)

	if ns.storage != nil {
		ns.updates.Delete(storage.ItemKey(id))
		return ns.flushLocked(false)
	}
	return nil
}

// invalidateLocked drops every derived structure after a write.
func (ns *Namespace) invalidateLocked() {
	for _, idx := range ns.indexes {
		idx.ClearCache()
	}
	ns.cacheMtx.Lock()
	ns.queryCache.Clear()
	ns.cacheMtx.Unlock()
	ns.joinCache.Purge()
}

// flushLocked writes the pending batch once it crosses the threshold,
// or immediately when force is set.
func (ns *Namespace) flushLocked(force bool) error {
	ns.unflushedCount = ns.updates.Len()
	if ns.storage == nil || ns.unflushedCount == 0 {
		return nil
	}
	if !force && ns.unflushedCount < flushThreshold {
		return nil
	}
	if err := ns.storage.Write(ns.updates); err != nil {
		return model.WrapError(model.CodeNotValid, err, "can't flush namespace %q", ns.name)
	}
	ns.updates.Reset()
	ns.unflushedCount = 0
	return nil
}

// Flush forces pending storage writes out.
func (ns *Namespace) Flush() error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	return ns.flushLocked(true)
}

// Close flushes pending writes and releases the storage backend.
func (ns *Namespace) Close() error {
	if err := ns.Flush(); err != nil {
		return err
	}
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	if ns.storage != nil {
		err := ns.storage.Close()
		ns.storage = nil
		if err != nil {
			return model.WrapError(model.CodeLogic, err, "can't close storage of namespace %q", ns.name)
		}
	}
	return nil
}

// RLock takes the namespace read lock for a coordinated multi-namespace
// query. Callers must lock involved namespaces in name order.
func (ns *Namespace) RLock() { ns.mtx.RLock() }

// RUnlock releases the read lock taken with RLock.
func (ns *Namespace) RUnlock() { ns.mtx.RUnlock() }

// Backup flushes pending writes and streams the namespace's storage
// content to w.
func (ns *Namespace) Backup(w io.Writer) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	if ns.storage == nil {
		return model.ErrLogic("namespace %q has no storage", ns.name)
	}
	if err := ns.flushLocked(true); err != nil {
		return err
	}
	return storage.Backup(ns.storage, w)
}

// PutMeta stores an application metadata blob under key.
func (ns *Namespace) PutMeta(key string, data []byte) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	if ns.storage == nil {
		return model.ErrLogic("namespace %q has no storage", ns.name)
	}
	ns.updates.Put(storage.MetaKey(key), data)
	return ns.flushLocked(true)
}

// GetMeta loads an application metadata blob, nil when absent.
func (ns *Namespace) GetMeta(key string) ([]byte, error) {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	if ns.storage == nil {
		return nil, model.ErrLogic("namespace %q has no storage", ns.name)
	}
	return ns.storage.Read(storage.MetaKey(key))
}

// EnumMeta lists the stored metadata keys.
func (ns *Namespace) EnumMeta() ([]string, error) {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	if ns.storage == nil {
		return nil, model.ErrLogic("namespace %q has no storage", ns.name)
	}
	var keys []string
	err := ns.storage.Iterate([]byte(storage.MetaPrefix), func(k, _ []byte) error {
		keys = append(keys, string(k[len(storage.MetaPrefix):]))
		return nil
	})
	return keys, err
}

// ItemsCount returns the number of live documents.
func (ns *Namespace) ItemsCount() int {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return len(ns.items) - ns.free.Len()
}

// SetCacheMode switches how query totals are cached and drops the
// current cache content. The mode is persisted with the namespace.
func (ns *Namespace) SetCacheMode(mode CacheMode) error {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	ns.cacheMode = mode
	ns.cacheMtx.Lock()
	ns.queryCache.Clear()
	ns.cacheMtx.Unlock()
	if ns.storage != nil {
		ns.updates.Put([]byte(storage.CacheModeKey), []byte{byte(mode)})
		return ns.flushLocked(false)
	}
	return nil
}

// EnablePerfCounters toggles operation counters.
func (ns *Namespace) EnablePerfCounters(enable bool) { ns.perfEnabled.Store(enable) }

// SetQueriesLogLevel sets the level query plans are logged at.
func (ns *Namespace) SetQueriesLogLevel(level slog.Level) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	ns.queriesLogLevel = level
}

// PerfStat is a snapshot of the operation counters. Latencies are
// collected only while perf counters are enabled.
type PerfStat struct {
	Selects        int64
	SelectAvgNanos int64
	Upserts        int64
	UpsertAvgNanos int64
	Deletes        int64
	Commits        int64
	CacheHits      int64
	CacheMisses    int64
}

// GetPerfStat returns the operation counters.
func (ns *Namespace) GetPerfStat() PerfStat {
	st := PerfStat{
		Selects:     ns.selectCount.Load(),
		Upserts:     ns.upsertCount.Load(),
		Deletes:     ns.deleteCount.Load(),
		Commits:     ns.commitCount.Load(),
		CacheHits:   ns.cacheHits.Load(),
		CacheMisses: ns.cacheMisses.Load(),
	}
	if st.Selects > 0 {
		st.SelectAvgNanos = ns.selectNanos.Load() / st.Selects
	}
	if st.Upserts > 0 {
		st.UpsertAvgNanos = ns.upsertNanos.Load() / st.Upserts
	}
	return st
}

// MemStat is a snapshot of the memory footprint.
type MemStat struct {
	Name        string
	Instance    uuid.UUID
	ItemsCount  int
	Indexes     map[string]int
	StorageName string
}

// GetMemStat reports the approximate per-index heap usage.
func (ns *Namespace) GetMemStat() MemStat {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	st := MemStat{
		Name:       ns.name,
		Instance:   ns.instance,
		ItemsCount: len(ns.items) - ns.free.Len(),
		Indexes:    make(map[string]int, len(ns.indexes)),
	}
	if ns.storage != nil {
		st.StorageName = fmt.Sprintf("%T", ns.storage)
	}
	for _, idx := range ns.indexes {
		st.Indexes[idx.Name()] = idx.MemBytes()
	}
	return st
}

// GetDefinition returns the index definitions in registration order.
func (ns *Namespace) GetDefinition() []IndexDef {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	out := make([]IndexDef, len(ns.defs))
	copy(out, ns.defs)
	return out
}
