package bounty

import (
	"encoding/binary"
	"fmt"

	"AgentBounty/internal/codec"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

// Text and reward limits.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 1000
	MaxSubmissionLen  = 500

	MinRewardLamports uint64 = 100_000_000    // 0.1 SOL
	MaxRewardLamports uint64 = 10_000_000_000 // 10 SOL
)

// prefixBounty is the storage key prefix for bounty records.
var prefixBounty = []byte("b:")

// Bounty is one task with escrowed reward.
type Bounty struct {
	ID             uint64        `json:"id"`
	Poster         types.Pubkey  `json:"poster"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	RewardLamports uint64        `json:"reward_lamports"`
	CreatedAt      int64         `json:"created_at"`
	Deadline       int64         `json:"deadline"`
	Status         Status        `json:"status"`
	Claimer        *types.Pubkey `json:"claimer,omitempty"`
	ClaimedAt      *int64        `json:"claimed_at,omitempty"`
	Submission     *string       `json:"submission,omitempty"`
	CompletedAt    *int64        `json:"completed_at,omitempty"`
}

// Check verifies that the optional fields agree with the status:
// a claimer exists iff the bounty was claimed, a submission iff work was submitted.
func (b *Bounty) Check() error {
	if !b.Status.Valid() {
		return fmt.Errorf("bounty %d: invalid status %d", b.ID, uint8(b.Status))
	}

	if b.Status.HasClaimer() != (b.Claimer != nil) {
		return fmt.Errorf("bounty %d: claimer presence does not match status %s", b.ID, b.Status)
	}

	if b.Status.HasClaimer() != (b.ClaimedAt != nil) {
		return fmt.Errorf("bounty %d: claimed_at presence does not match status %s", b.ID, b.Status)
	}

	if b.Status.HasSubmission() != (b.Submission != nil) {
		return fmt.Errorf("bounty %d: submission presence does not match status %s", b.ID, b.Status)
	}

	if (b.Status == StatusCompleted) != (b.CompletedAt != nil) {
		return fmt.Errorf("bounty %d: completed_at presence does not match status %s", b.ID, b.Status)
	}

	return nil
}

// Encode serializes the bounty in Borsh layout.
func (b *Bounty) Encode() []byte {
	w := codec.NewWriter(128 + len(b.Title) + len(b.Description))

	w.U64(b.ID)
	w.Fixed32(b.Poster)
	w.String(b.Title)
	w.String(b.Description)
	w.U64(b.RewardLamports)
	w.I64(b.CreatedAt)
	w.I64(b.Deadline)
	w.U8(uint8(b.Status))

	w.Option(b.Claimer != nil)
	if b.Claimer != nil {
		w.Fixed32(*b.Claimer)
	}

	w.Option(b.ClaimedAt != nil)
	if b.ClaimedAt != nil {
		w.I64(*b.ClaimedAt)
	}

	w.Option(b.Submission != nil)
	if b.Submission != nil {
		w.String(*b.Submission)
	}

	w.Option(b.CompletedAt != nil)
	if b.CompletedAt != nil {
		w.I64(*b.CompletedAt)
	}

	return w.Finish()
}

// Decode parses a Borsh-encoded bounty. Text caps, status tags and
// trailing bytes are enforced.
func Decode(data []byte) (*Bounty, error) {
	r := codec.NewReader(data)
	b := &Bounty{}

	b.ID = r.Field("id").U64()
	b.Poster = r.Field("poster").Fixed32()
	b.Title = r.Field("title").String(MaxTitleLen)
	b.Description = r.Field("description").String(MaxDescriptionLen)
	b.RewardLamports = r.Field("reward_lamports").U64()
	b.CreatedAt = r.Field("created_at").I64()
	b.Deadline = r.Field("deadline").I64()
	b.Status = Status(r.Field("status").U8())

	if r.Field("claimer").Option() {
		claimer := types.Pubkey(r.Fixed32())
		b.Claimer = &claimer
	}

	if r.Field("claimed_at").Option() {
		claimedAt := r.I64()
		b.ClaimedAt = &claimedAt
	}

	if r.Field("submission").Option() {
		submission := r.String(MaxSubmissionLen)
		b.Submission = &submission
	}

	if r.Field("completed_at").Option() {
		completedAt := r.I64()
		b.CompletedAt = &completedAt
	}

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode bounty:\n%w", err)
	}

	if !b.Status.Valid() {
		return nil, fmt.Errorf("decode bounty: unknown status tag %d", uint8(b.Status))
	}

	return b, nil
}

// load reads bounty id, returning ErrBountyNotFound if absent.
func load(r storage.Reader, id uint64) (*Bounty, error) {
	data, err := r.Get(bountyKey(id))
	if err != nil {
		return nil, fmt.Errorf("read bounty %d:\n%w", id, err)
	}

	if data == nil {
		return nil, ErrBountyNotFound
	}

	return Decode(data)
}

// save writes b after checking its status invariants.
func save(txn *storage.Txn, b *Bounty) error {
	if err := b.Check(); err != nil {
		return err
	}

	if err := txn.Set(bountyKey(b.ID), b.Encode()); err != nil {
		return fmt.Errorf("write bounty %d:\n%w", b.ID, err)
	}

	return nil
}

// each visits every stored bounty in id order.
func each(r storage.Reader, fn func(*Bounty) error) error {
	return r.IteratePrefix(prefixBounty, func(key, value []byte) error {
		b, err := Decode(value)
		if err != nil {
			return fmt.Errorf("key %x:\n%w", key, err)
		}

		return fn(b)
	})
}

// bountyKey is "b:" followed by the big-endian id, so keys sort by id.
func bountyKey(id uint64) []byte {
	key := make([]byte, len(prefixBounty)+8)
	copy(key, prefixBounty)
	binary.BigEndian.PutUint64(key[len(prefixBounty):], id)

	return key
}
