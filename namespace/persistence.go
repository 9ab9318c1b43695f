package namespace

import (
	"encoding/binary"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/storage"
)

// storedDefinition is the persisted namespace layout.
type storedDefinition struct {
	Name    string     `msgpack:"name"`
	Indexes []IndexDef `msgpack:"indexes"`
}

// storedItem is the persisted form of one document.
type storedItem struct {
	Fields  map[string][]any `msgpack:"f"`
	Tail    map[string]any   `msgpack:"t,omitempty"`
	Version int64            `msgpack:"v"`
}

func encodeItem(pt *payload.Type, v *payload.Value) storedItem {
	si := storedItem{
		Fields:  make(map[string][]any, pt.NumFields()),
		Tail:    v.Tail(),
		Version: int64(v.Version()),
	}
	for i := 0; i < pt.NumFields(); i++ {
		vals := v.Get(i)
		if len(vals) == 0 {
			continue
		}
		out := make([]any, 0, len(vals))
		for _, kv := range vals {
			out = append(out, kv.Interface())
		}
		si.Fields[pt.Field(i).Name] = out
	}
	return si
}

func (ns *Namespace) decodeItem(si storedItem) (*payload.Value, error) {
	v := payload.NewValue(ns.payloadType)
	for name, raw := range si.Fields {
		no, ok := ns.payloadType.FieldByName(name)
		if !ok {
			continue
		}
		f := ns.payloadType.Field(no)
		kvs := make([]keyvalue.Value, 0, len(raw))
		for _, r := range raw {
			kv, err := keyvalue.FromAny(r)
			if err != nil {
				return nil, err
			}
			kv, err = kv.Convert(f.Type)
			if err != nil {
				return nil, err
			}
			kvs = append(kvs, kv)
		}
		v.Set(no, kvs...)
	}
	if len(si.Tail) > 0 {
		v.SetTail(si.Tail)
	}
	v.SetVersion(model.Version(si.Version))
	return v, nil
}

func (ns *Namespace) saveDefinitionLocked() error {
	blob, err := storage.Marshal(storedDefinition{Name: ns.name, Indexes: ns.defs})
	if err != nil {
		return err
	}
	ns.updates.Put([]byte(storage.SchemaKey), blob)

	tagsBlob, err := storage.Marshal(ns.tags.Names())
	if err != nil {
		return err
	}
	ns.updates.Put([]byte(storage.TagsKey), tagsBlob)
	return ns.flushLocked(true)
}

// loadFromStorage restores the schema, tags and items written by a
// previous run.
func (ns *Namespace) loadFromStorage() error {
	blob, err := ns.storage.Read([]byte(storage.SchemaKey))
	if err != nil {
		return err
	}
	if blob == nil {
		return nil
	}

	var def storedDefinition
	if err := storage.Unmarshal(blob, &def); err != nil {
		return model.WrapError(model.CodeNotValid, err, "corrupt definition of namespace %q", ns.name)
	}
	for _, idef := range def.Indexes {
		if err := ns.addIndexLocked(idef, false); err != nil {
			return err
		}
	}

	if modeBlob, err := ns.storage.Read([]byte(storage.CacheModeKey)); err == nil && len(modeBlob) == 1 {
		ns.cacheMode = CacheMode(modeBlob[0])
	}

	if tagsBlob, err := ns.storage.Read([]byte(storage.TagsKey)); err == nil && tagsBlob != nil {
		var names []string
		if err := storage.Unmarshal(tagsBlob, &names); err != nil {
			return model.WrapError(model.CodeNotValid, err, "corrupt tags of namespace %q", ns.name)
		}
		ns.tags.Load(names, len(names))
	}

	err = ns.storage.Iterate([]byte(storage.ItemPrefix), func(k, v []byte) error {
		if len(k) != len(storage.ItemPrefix)+4 {
			return model.ErrNotValid("corrupt item key in namespace %q", ns.name)
		}
		id := model.IdType(binary.BigEndian.Uint32(k[len(storage.ItemPrefix):]))

		var si storedItem
		if err := storage.Unmarshal(v, &si); err != nil {
			return model.WrapError(model.CodeNotValid, err, "corrupt item %d in namespace %q", id, ns.name)
		}
		item, err := ns.decodeItem(si)
		if err != nil {
			return err
		}

		for int(id) >= len(ns.items) {
			ns.items = append(ns.items, nil)
			ns.free.Add(model.IdType(len(ns.items) - 1))
		}
		ns.free.Remove(id)
		ns.items[id] = item
		for _, idx := range ns.indexes {
			for _, key := range index.KeysOf(idx, ns.payloadType, item) {
				idx.Upsert(key, id)
			}
		}
		return nil
	})
	return err
}
