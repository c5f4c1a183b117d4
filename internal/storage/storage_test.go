package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

// newTestStorage creates a temporary storage closed at test cleanup.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

// put commits one pair.
func put(t *testing.T, s *Storage, key, value string) {
	t.Helper()

	err := s.Update(func(txn *Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		t.Fatalf("put %q failed: %v", key, err)
	}
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "test-key", "test-value")

	got, err := s.Get([]byte("test-key"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(got) != "test-value" {
		t.Errorf("Get returned %q, want %q", got, "test-value")
	}
}

func TestGetNonExistent(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("non-existent"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "to-delete", "value")

	err := s.Update(func(txn *Txn) error {
		if err := txn.Delete([]byte("to-delete")); err != nil {
			return err
		}

		got, err := txn.Get([]byte("to-delete"))
		if err != nil {
			return err
		}
		if got != nil {
			t.Errorf("staged delete still visible: %q", got)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Get([]byte("to-delete"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get after Delete returned %q, want nil", got)
	}
}

// TestUpdate_Commit verifies staged writes become visible after commit.
func TestUpdate_Commit(t *testing.T) {
	s := newTestStorage(t)

	err := s.Update(func(txn *Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return txn.Set([]byte("b"), []byte("2"))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, _ := s.Get([]byte(key))
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", key, got, want)
		}
	}
}

// TestUpdate_Rollback verifies an error discards every staged write.
func TestUpdate_Rollback(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "balance", "100")

	errAbort := errors.New("abort")

	err := s.Update(func(txn *Txn) error {
		_ = txn.Set([]byte("balance"), []byte("0"))
		_ = txn.Set([]byte("other"), []byte("x"))
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected errAbort, got %v", err)
	}

	got, _ := s.Get([]byte("balance"))
	if string(got) != "100" {
		t.Errorf("balance = %q, want unchanged 100", got)
	}

	if got, _ := s.Get([]byte("other")); got != nil {
		t.Errorf("other = %q, want nil", got)
	}
}

// TestUpdate_ReadYourWrites verifies Get and IteratePrefix see staged writes.
func TestUpdate_ReadYourWrites(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "k:1", "committed")

	err := s.Update(func(txn *Txn) error {
		if err := txn.Set([]byte("k:2"), []byte("staged")); err != nil {
			return err
		}

		got, err := txn.Get([]byte("k:2"))
		if err != nil {
			return err
		}
		if string(got) != "staged" {
			t.Errorf("txn.Get = %q, want staged", got)
		}

		var keys []string
		err = txn.IteratePrefix([]byte("k:"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		if err != nil {
			return err
		}

		if len(keys) != 2 || keys[0] != "k:1" || keys[1] != "k:2" {
			t.Errorf("iterated keys = %v, want [k:1 k:2]", keys)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

// TestUpdate_Serialized verifies concurrent read-modify-write transactions do not lose updates.
func TestUpdate_Serialized(t *testing.T) {
	s := newTestStorage(t)

	const workers = 16
	key := []byte("counter")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(func(txn *Txn) error {
				v, err := txn.Get(key)
				if err != nil {
					return err
				}
				return txn.Set(key, append(v, 'x'))
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get(key)
	if len(got) != workers {
		t.Errorf("counter length = %d, want %d", len(got), workers)
	}
}

// TestUpdate_OnCommit verifies hooks run in order after a commit and never
// after a discarded transaction.
func TestUpdate_OnCommit(t *testing.T) {
	s := newTestStorage(t)

	var order []string

	err := s.Update(func(txn *Txn) error {
		txn.OnCommit(func() { order = append(order, "first") })
		txn.OnCommit(func() {
			got, _ := s.Get([]byte("hooked"))
			if got == nil {
				t.Error("hook ran before the write was visible")
			}
			order = append(order, "second")
		})
		return txn.Set([]byte("hooked"), []byte("1"))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hooks ran as %v", order)
	}

	errAbort := errors.New("abort")
	err = s.Update(func(txn *Txn) error {
		txn.OnCommit(func() { t.Error("hook ran for a discarded transaction") })
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort, got %v", err)
	}
}

// TestView_Snapshot verifies a view is not affected by later writes.
func TestView_Snapshot(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "v", "old")

	err := s.View(func(r Reader) error {
		put(t, s, "v", "new")

		got, err := r.Get([]byte("v"))
		if err != nil {
			return err
		}
		if string(got) != "old" {
			t.Errorf("snapshot Get = %q, want old", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	put(t, s, "a:1", "x")
	put(t, s, "a:2", "y")
	put(t, s, "b:1", "z")

	var count int
	err := s.IteratePrefix([]byte("a:"), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if count != 2 {
		t.Errorf("expected 2 keys, got %d", count)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("a:"), []byte("a;")},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tt.prefix, got, tt.want)
		}
	}
}
