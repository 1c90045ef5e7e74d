package datastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type settings struct {
	Volume int  `json:"volume"`
	Hold   bool `json:"hold"`
}

func open(t *testing.T, path string) *DataStore {
	t.Helper()
	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	cfg.Logger = zerolog.Nop()
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	ds := open(t, path)
	if err := ds.Put("g1", settings{Volume: 70, Hold: true}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	ds = open(t, path)
	t.Cleanup(func() { ds.Close() })

	var got settings
	ok, err := ds.Get("g1", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Volume != 70 || !got.Hold {
		t.Fatalf("got %+v", got)
	}
	if ok, _ := ds.Get("missing", &got); ok {
		t.Fatal("missing key found")
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ds := open(t, filepath.Join(t.TempDir(), "store.json"))
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put("k", 1); err != ErrClosed {
		t.Fatalf("err = %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal("second close failed")
	}
}

func TestMemoryLimit(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "store.json"))
	cfg.AutoSaveInterval = 0
	cfg.MaxMemorySize = 16
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })

	if err := ds.Put("a", "short"); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put("b", "this value is far too long"); err == nil {
		t.Fatal("limit not enforced")
	}
	ds.Delete("a")
	if err := ds.Put("b", "fits now"); err != nil {
		t.Fatal(err)
	}
}

func TestBackupsRotated(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(filepath.Join(dir, "store.json"))
	cfg.AutoSaveInterval = 0
	cfg.BackupCount = 2
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })

	for i := range 5 {
		if err := ds.Put("n", i); err != nil {
			t.Fatal(err)
		}
		if err := ds.SaveToFile(); err != nil {
			t.Fatal(err)
		}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "store.json.backup.*"))
	if len(matches) > 2 {
		t.Fatalf("backups = %d", len(matches))
	}
	if _, err := os.Stat(filepath.Join(dir, "store.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}
