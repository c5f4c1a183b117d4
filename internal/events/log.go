package events

import (
	"encoding/binary"
	"errors"
	"fmt"

	"AgentBounty/internal/storage"
)

// Storage keys.
var (
	prefixEvent = []byte("x:")
	headKey     = []byte("m:event_seq")
)

// errStop ends an iteration early.
var errStop = errors.New("stop iteration")

// Append assigns the next sequence number to rec and stores it.
// It runs inside the caller's transaction so the record commits with the
// state change it describes.
func Append(txn *storage.Txn, rec *Record) error {
	head, err := Head(txn)
	if err != nil {
		return err
	}

	rec.Seq = head + 1

	if err := txn.Set(eventKey(rec.Seq), rec.Encode()); err != nil {
		return fmt.Errorf("write event:\n%w", err)
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rec.Seq)

	if err := txn.Set(headKey, buf); err != nil {
		return fmt.Errorf("write event head:\n%w", err)
	}

	return nil
}

// Head returns the sequence number of the last appended record (0 if none).
func Head(r storage.Reader) (uint64, error) {
	data, err := r.Get(headKey)
	if err != nil {
		return 0, fmt.Errorf("read event head:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt event head: %d bytes", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

// Since returns up to limit records with Seq > after, in order.
// A limit of zero or less means no limit.
func Since(r storage.Reader, after uint64, limit int) ([]*Record, error) {
	var out []*Record

	err := r.IteratePrefix(prefixEvent, func(key, value []byte) error {
		if len(key) != len(prefixEvent)+8 {
			return nil
		}

		if binary.BigEndian.Uint64(key[len(prefixEvent):]) <= after {
			return nil
		}

		rec, err := Decode(value)
		if err != nil {
			return err
		}

		out = append(out, rec)

		if limit > 0 && len(out) >= limit {
			return errStop
		}

		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	return out, nil
}

// eventKey builds "x:" + big-endian seq.
func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)

	return key
}
