// Package snapshot exports and restores the full marketplace state as a
// zstd-compressed, blake3-checksummed stream, and compares two states.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"AgentBounty/internal/codec"
	"AgentBounty/internal/storage"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1

	// maxKeySize and maxValueSize bound entries read from a stream.
	maxKeySize   = 1 << 10
	maxValueSize = 1 << 20
)

// magic opens every encoded snapshot.
var magic = [4]byte{'A', 'B', 'S', 'N'}

var (
	// ErrChecksum is returned when a snapshot's content does not match its checksum.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrFormat is returned for an unknown magic or version.
	ErrFormat = errors.New("unsupported snapshot format")
)

// Entry is one stored key-value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Snapshot is a point-in-time copy of every stored pair, in key order.
type Snapshot struct {
	Version  uint32
	Entries  []Entry
	Checksum [32]byte
}

// Create copies every pair visible to r.
func Create(r storage.Reader) (*Snapshot, error) {
	var entries []Entry

	err := r.IteratePrefix(nil, func(key, value []byte) error {
		// Copy key and value to avoid iterator invalidation
		entries = append(entries, Entry{
			Key:   append([]byte(nil), key...),
			Value: append([]byte(nil), value...),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	sortEntries(entries)

	return &Snapshot{
		Version:  snapshotVersion,
		Entries:  entries,
		Checksum: checksum(snapshotVersion, entries),
	}, nil
}

// Encode serializes the snapshot: magic, version, entry count, entries, checksum.
func (s *Snapshot) Encode() []byte {
	size := 4 + 4 + 4 + 32
	for _, e := range s.Entries {
		size += 8 + len(e.Key) + len(e.Value)
	}

	w := codec.NewWriter(size)
	w.U8(magic[0])
	w.U8(magic[1])
	w.U8(magic[2])
	w.U8(magic[3])
	w.U32(s.Version)
	w.U32(uint32(len(s.Entries)))

	for _, e := range s.Entries {
		w.Bytes(e.Key)
		w.Bytes(e.Value)
	}

	w.Fixed32(s.Checksum)

	return w.Finish()
}

// Decode parses an encoded snapshot and verifies its checksum.
func Decode(data []byte) (*Snapshot, error) {
	r := codec.NewReader(data)

	var got [4]byte
	for i := range got {
		got[i] = r.Field("magic").U8()
	}

	version := r.Field("version").U32()
	if r.Err() == nil && (got != magic || version != snapshotVersion) {
		return nil, fmt.Errorf("%w: magic %q version %d", ErrFormat, got[:], version)
	}

	count := r.Field("count").U32()
	if r.Err() == nil && uint64(count)*8 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: entry count %d exceeds input", codec.ErrShortBuffer, count)
	}

	s := &Snapshot{Version: version, Entries: make([]Entry, 0, count)}

	for i := uint32(0); i < count && r.Err() == nil; i++ {
		key := r.Field("key").Bytes(maxKeySize)
		value := r.Field("value").Bytes(maxValueSize)
		s.Entries = append(s.Entries, Entry{Key: key, Value: value})
	}

	s.Checksum = r.Field("checksum").Fixed32()

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode snapshot:\n%w", err)
	}

	if !sort.SliceIsSorted(s.Entries, func(i, j int) bool {
		return bytes.Compare(s.Entries[i].Key, s.Entries[j].Key) < 0
	}) {
		return nil, fmt.Errorf("decode snapshot: entries out of order")
	}

	if computed := checksum(s.Version, s.Entries); computed != s.Checksum {
		return nil, ErrChecksum
	}

	return s, nil
}

// Export writes a compressed snapshot of db's current state to w.
func Export(db *storage.Storage, w io.Writer) (*Snapshot, error) {
	var snap *Snapshot
	err := db.View(func(r storage.Reader) error {
		var err error
		snap, err = Create(r)
		return err
	})
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}

	if _, err := encoder.Write(snap.Encode()); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("write snapshot:\n%w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("flush snapshot:\n%w", err)
	}

	return snap, nil
}

// Read decompresses and verifies a snapshot stream.
func Read(rd io.Reader) (*Snapshot, error) {
	decoder, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	return Decode(data)
}

// Import replaces the entire contents of db with the snapshot read from rd.
// The replacement is one transaction: a bad stream leaves db untouched.
func Import(db *storage.Storage, rd io.Reader) (*Snapshot, error) {
	snap, err := Read(rd)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(txn *storage.Txn) error {
		var stale [][]byte
		err := txn.IteratePrefix(nil, func(key, _ []byte) error {
			stale = append(stale, append([]byte(nil), key...))
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan existing state:\n%w", err)
		}

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("clear existing state:\n%w", err)
			}
		}

		for _, e := range snap.Entries {
			if err := txn.Set(e.Key, e.Value); err != nil {
				return fmt.Errorf("write entries:\n%w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// sortEntries sorts entries by key for deterministic ordering.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}

// checksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + for each entry: key len + key + value len + value
func checksum(version uint32, entries []Entry) [32]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:], uint32(len(e.Key)))
		hasher.Write(buf[:])
		hasher.Write(e.Key)

		binary.BigEndian.PutUint32(buf[:], uint32(len(e.Value)))
		hasher.Write(buf[:])
		hasher.Write(e.Value)
	}

	var sum [32]byte
	hasher.Sum(sum[:0])

	return sum
}
