package storage

import (
	"bytes"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/rexdb/model"
)

var boltBucket = []byte("rexdb")

// Bolt is a Storage backed by a bbolt file, one bucket per database
// file. Batches map to single read-write transactions.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, model.WrapError(model.CodeNotValid, err, "can't open storage %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, model.WrapError(model.CodeNotValid, err, "can't init storage %q", path)
	}
	return &Bolt{db: db}, nil
}

// Read returns the value of key, or (nil, nil) when absent.
func (b *Bolt) Read(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// Write applies a batch in one transaction.
func (b *Bolt) Write(updates *UpdatesCollection) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		for _, p := range updates.puts {
			if err := bkt.Put(p.key, p.value); err != nil {
				return err
			}
		}
		for _, k := range updates.deletes {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Iterate walks keys with the prefix in ascending order.
func (b *Bolt) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying file.
func (b *Bolt) Close() error { return b.db.Close() }
