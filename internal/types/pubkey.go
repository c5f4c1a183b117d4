package types

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// PubkeySize is the size of an identity in bytes.
const PubkeySize = 32

// Pubkey is a 32-byte Ed25519 public key identifying a poster, claimer,
// authority or custody account.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a hex-encoded identity.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey

	raw, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("decode pubkey: %w", err)
	}

	if len(raw) != PubkeySize {
		return p, fmt.Errorf("invalid pubkey length: got %d, want %d", len(raw), PubkeySize)
	}

	copy(p[:], raw)

	return p, nil
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, bool) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, false
	}

	copy(p[:], b)

	return p, true
}

// Derive returns the identity addressed by seeds: blake3 over the seeds in order.
// Derived identities have no private key; only protocol logic moves value out of them.
func Derive(seeds ...[]byte) Pubkey {
	h := blake3.New()
	for _, seed := range seeds {
		h.Write(seed)
	}

	var p Pubkey
	copy(p[:], h.Sum(nil))

	return p
}

// IsZero reports whether p is the all-zero identity.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// String returns the hex encoding.
func (p Pubkey) String() string {
	return hex.EncodeToString(p[:])
}

// Short returns the first 8 bytes in hex, for logs.
func (p Pubkey) Short() string {
	return hex.EncodeToString(p[:8])
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}
