package types

import (
	"encoding/json"
	"testing"
)

func TestParsePubkey_RoundTrip(t *testing.T) {
	var p Pubkey
	for i := range p {
		p[i] = byte(i)
	}

	got, err := ParsePubkey(p.String())
	if err != nil {
		t.Fatalf("ParsePubkey failed: %v", err)
	}

	if got != p {
		t.Errorf("round trip mismatch: %x", got)
	}
}

func TestParsePubkey_Invalid(t *testing.T) {
	for _, in := range []string{"", "zz", "abcd"} {
		if _, err := ParsePubkey(in); err == nil {
			t.Errorf("ParsePubkey(%q) should fail", in)
		}
	}
}

// TestDerive_Deterministic verifies the same seeds always give the same identity.
func TestDerive_Deterministic(t *testing.T) {
	a := Derive([]byte("fee_vault"))
	b := Derive([]byte("fee_vault"))
	c := Derive([]byte("escrow"), []byte{1})

	if a != b {
		t.Error("Derive is not deterministic")
	}

	if a == c {
		t.Error("different seeds produced the same identity")
	}

	if a.IsZero() {
		t.Error("derived identity should not be zero")
	}
}

func TestPubkey_JSON(t *testing.T) {
	p := Derive([]byte("poster"))

	data, err := json.Marshal(map[string]Pubkey{"poster": p})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]Pubkey
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["poster"] != p {
		t.Errorf("decoded %x, want %x", decoded["poster"], p)
	}
}
