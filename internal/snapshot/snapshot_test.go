package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"AgentBounty/internal/storage"
)

// newTestStorage opens a store in a temporary directory.
func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// seed writes pairs in one batch.
func seed(t *testing.T, db *storage.Storage, pairs map[string]string) {
	t.Helper()

	err := db.Update(func(txn *storage.Txn) error {
		for k, v := range pairs {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// TestExportImport verifies a snapshot restores the exact state into another store.
func TestExportImport(t *testing.T) {
	src := newTestStorage(t)
	seed(t, src, map[string]string{
		"p:protocol":                         "singleton",
		"b:\x00\x00\x00\x00\x00\x00\x00\x01": "bounty",
		"a:someone":                          "balance",
	})

	var buf bytes.Buffer
	exported, err := Export(src, &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(exported.Entries) != 3 {
		t.Fatalf("exported %d entries, want 3", len(exported.Entries))
	}

	dst := newTestStorage(t)
	seed(t, dst, map[string]string{"a:stale": "gone", "p:protocol": "old"})

	imported, err := Import(dst, &buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.Checksum != exported.Checksum {
		t.Error("checksum changed across export/import")
	}

	stale, err := dst.Get([]byte("a:stale"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stale != nil {
		t.Error("import kept a key absent from the snapshot")
	}

	var diff *Difference
	err = src.View(func(l storage.Reader) error {
		return dst.View(func(r storage.Reader) error {
			var err error
			diff, err = Diff(l, r)
			return err
		})
	})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("restored state differs: %+v", diff)
	}
}

// TestDecode_Corrupt verifies tampered snapshots are rejected.
func TestDecode_Corrupt(t *testing.T) {
	db := newTestStorage(t)
	seed(t, db, map[string]string{"p:protocol": "singleton", "a:x": "1"})

	var snap *Snapshot
	err := db.View(func(r storage.Reader) error {
		var err error
		snap, err = Create(r)
		return err
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	data := snap.Encode()
	if _, err := Decode(data); err != nil {
		t.Fatalf("Decode of valid snapshot failed: %v", err)
	}

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-40] ^= 0xFF
	if _, err := Decode(flipped); !errors.Is(err, ErrChecksum) {
		t.Errorf("flipped value: got %v, want ErrChecksum", err)
	}

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); !errors.Is(err, ErrFormat) {
		t.Errorf("bad magic: got %v, want ErrFormat", err)
	}

	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Error("truncated snapshot accepted")
	}
}

// TestImport_BadStreamKeepsState verifies a failed import writes nothing.
func TestImport_BadStreamKeepsState(t *testing.T) {
	db := newTestStorage(t)
	seed(t, db, map[string]string{"p:protocol": "keep"})

	if _, err := Import(db, bytes.NewReader([]byte("not zstd"))); err == nil {
		t.Fatal("expected error for garbage stream")
	}

	got, err := db.Get([]byte("p:protocol"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "keep" {
		t.Errorf("state changed: %q", got)
	}
}

// TestCompare verifies missing and changed keys on both sides.
func TestCompare(t *testing.T) {
	left := &Snapshot{Entries: []Entry{
		{Key: []byte("a:1"), Value: []byte("x")},
		{Key: []byte("b:\x00\x00\x00\x00\x00\x00\x00\x02"), Value: []byte("same")},
		{Key: []byte("p:protocol"), Value: []byte("v1")},
	}}
	right := &Snapshot{Entries: []Entry{
		{Key: []byte("b:\x00\x00\x00\x00\x00\x00\x00\x02"), Value: []byte("same")},
		{Key: []byte("e:\x00\x00\x00\x00\x00\x00\x00\x02"), Value: []byte("y")},
		{Key: []byte("p:protocol"), Value: []byte("v2")},
	}}

	d := Compare(left, right)

	if len(d.OnlyLeft) != 1 || d.OnlyLeft[0] != "613a31" {
		t.Errorf("only left = %v", d.OnlyLeft)
	}
	if len(d.OnlyRight) != 1 || d.OnlyRight[0] != "escrow 2" {
		t.Errorf("only right = %v", d.OnlyRight)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "protocol" {
		t.Errorf("changed = %v", d.Changed)
	}
}

// TestDescribe verifies key rendering.
func TestDescribe(t *testing.T) {
	account := append([]byte("a:"), bytes.Repeat([]byte{0xAB}, 32)...)

	tests := []struct {
		key  []byte
		want string
	}{
		{[]byte("p:protocol"), "protocol"},
		{[]byte("m:event_seq"), "meta event_seq"},
		{[]byte("b:\x00\x00\x00\x00\x00\x00\x01\x00"), "bounty 256"},
		{[]byte("x:\x00\x00\x00\x00\x00\x00\x00\x07"), "event 7"},
		{account, "account abababababababab"},
		{[]byte("b:short"), "623a73686f7274"},
	}

	for _, tt := range tests {
		if got := Describe(tt.key); got != tt.want {
			t.Errorf("Describe(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
