package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"AgentBounty/internal/storage"
)

// Difference is the result of comparing two states.
type Difference struct {
	OnlyLeft  []string // OnlyLeft names keys present only in the left state
	OnlyRight []string // OnlyRight names keys present only in the right state
	Changed   []string // Changed names keys whose values differ
}

// Empty reports whether both states are identical.
func (d *Difference) Empty() bool {
	return len(d.OnlyLeft) == 0 && len(d.OnlyRight) == 0 && len(d.Changed) == 0
}

// Diff compares every pair of left against right.
func Diff(left, right storage.Reader) (*Difference, error) {
	l, err := Create(left)
	if err != nil {
		return nil, fmt.Errorf("read left state:\n%w", err)
	}

	r, err := Create(right)
	if err != nil {
		return nil, fmt.Errorf("read right state:\n%w", err)
	}

	return Compare(l, r), nil
}

// Compare walks two snapshots in key order.
func Compare(left, right *Snapshot) *Difference {
	d := &Difference{}
	i, j := 0, 0

	for i < len(left.Entries) || j < len(right.Entries) {
		switch {
		case j == len(right.Entries):
			d.OnlyLeft = append(d.OnlyLeft, Describe(left.Entries[i].Key))
			i++
		case i == len(left.Entries):
			d.OnlyRight = append(d.OnlyRight, Describe(right.Entries[j].Key))
			j++
		default:
			a, b := left.Entries[i], right.Entries[j]

			switch cmp := bytes.Compare(a.Key, b.Key); {
			case cmp < 0:
				d.OnlyLeft = append(d.OnlyLeft, Describe(a.Key))
				i++
			case cmp > 0:
				d.OnlyRight = append(d.OnlyRight, Describe(b.Key))
				j++
			default:
				if !bytes.Equal(a.Value, b.Value) {
					d.Changed = append(d.Changed, Describe(a.Key))
				}
				i++
				j++
			}
		}
	}

	return d
}

// Describe renders a storage key for humans: "bounty 3", "escrow 3",
// "account 1a2b3c4d5e6f7081", "event 12", "protocol".
func Describe(key []byte) string {
	if len(key) < 2 || key[1] != ':' {
		return hex.EncodeToString(key)
	}

	body := key[2:]

	switch key[0] {
	case 'p':
		return "protocol"
	case 'm':
		return "meta " + string(body)
	case 'b', 'e', 'x':
		if len(body) != 8 {
			break
		}

		id := strconv.FormatUint(binary.BigEndian.Uint64(body), 10)
		switch key[0] {
		case 'b':
			return "bounty " + id
		case 'e':
			return "escrow " + id
		default:
			return "event " + id
		}
	case 'a':
		if len(body) == 32 {
			return "account " + hex.EncodeToString(body[:8])
		}
	}

	return hex.EncodeToString(key)
}
