package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rexdb/model"
)

func testBackends(t *testing.T) map[string]Storage {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]Storage{
		"memory": NewMemory(),
		"bolt":   bolt,
	}
}

func TestBatchWriteReadDelete(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			u := NewUpdates()
			u.Put([]byte("a"), []byte("1"))
			u.Put([]byte("b"), []byte("2"))
			require.NoError(t, s.Write(u))

			v, err := s.Read([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)

			v, err = s.Read([]byte("missing"))
			require.NoError(t, err)
			assert.Nil(t, v)

			u = NewUpdates()
			u.Delete([]byte("a"))
			require.NoError(t, s.Write(u))
			v, err = s.Read([]byte("a"))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestIteratePrefix(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			u := NewUpdates()
			u.Put(ItemKey(1), []byte("one"))
			u.Put(ItemKey(2), []byte("two"))
			u.Put(MetaKey("x"), []byte("meta"))
			require.NoError(t, s.Write(u))

			var keys [][]byte
			err := s.Iterate([]byte(ItemPrefix), func(k, v []byte) error {
				keys = append(keys, append([]byte(nil), k...))
				return nil
			})
			require.NoError(t, err)
			require.Len(t, keys, 2)
			assert.Equal(t, ItemKey(1), keys[0])
			assert.Equal(t, ItemKey(2), keys[1])
		})
	}
}

func TestItemKeyOrdering(t *testing.T) {
	assert.Equal(t, -1, bytes.Compare(ItemKey(1), ItemKey(256)))
	assert.Equal(t, byte('I'), ItemKey(7)[0])
}

func TestMarshalRoundTrip(t *testing.T) {
	type def struct {
		Name  string
		Count int
	}
	blob, err := Marshal(def{Name: "ns", Count: 3})
	require.NoError(t, err)

	var got def
	require.NoError(t, Unmarshal(blob, &got))
	assert.Equal(t, def{Name: "ns", Count: 3}, got)

	var e *model.Error
	err = Unmarshal([]byte("garbage"), &got)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, model.CodeNotValid, e.Code())
}

func TestBackupRestore(t *testing.T) {
	src := NewMemory()
	u := NewUpdates()
	u.Put([]byte("k1"), []byte("v1"))
	u.Put(ItemKey(9), []byte("item"))
	require.NoError(t, src.Write(u))

	var buf bytes.Buffer
	require.NoError(t, Backup(src, &buf))

	dst := NewMemory()
	require.NoError(t, Restore(dst, &buf))

	v, err := dst.Read([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	v, err = dst.Read(ItemKey(9))
	require.NoError(t, err)
	assert.Equal(t, []byte("item"), v)

	// Corrupt stream rejected.
	assert.Error(t, Restore(NewMemory(), bytes.NewReader([]byte("nope"))))
}
