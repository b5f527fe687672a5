package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	mem, err := NewMemLevelDB()
	if err != nil {
		t.Fatalf("mem leveldb: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	return map[string]Database{
		"memdb":   NewMemDB(),
		"leveldb": mem,
	}
}

func TestDatabaseBasics(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := db.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("put: %v", err)
			}
			value, err := db.Get([]byte("k"))
			if err != nil || string(value) != "v" {
				t.Fatalf("get: %q %v", value, err)
			}
			// Returned slices are owned by the caller.
			value[0] = 'x'
			again, _ := db.Get([]byte("k"))
			if string(again) != "v" {
				t.Fatalf("stored value aliased: %q", again)
			}
			if err := db.Delete([]byte("k")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if ok, err := db.Has([]byte("k")); err != nil || ok {
				t.Fatalf("has after delete: %v %v", ok, err)
			}
		})
	}
}

func TestDatabaseBatch(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Put([]byte("old"), []byte("1")); err != nil {
				t.Fatalf("put: %v", err)
			}
			batch := NewBatch()
			key := []byte("a")
			batch.Put(key, []byte("1"))
			key[0] = 'z' // batches copy their inputs
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("old"))
			if batch.Len() != 3 {
				t.Fatalf("batch len %d", batch.Len())
			}
			if err := db.Write(batch); err != nil {
				t.Fatalf("write: %v", err)
			}
			for k, want := range map[string]bool{"a": true, "b": true, "z": false, "old": false} {
				ok, err := db.Has([]byte(k))
				if err != nil || ok != want {
					t.Fatalf("has %s = %v (%v), want %v", k, ok, err, want)
				}
			}
			if err := db.Write(NewBatch()); err != nil {
				t.Fatalf("empty batch: %v", err)
			}
		})
	}
}

func TestLevelDBPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get([]byte("k"))
	if err != nil || string(value) != "v" {
		t.Fatalf("get after reopen: %q %v", value, err)
	}
}
