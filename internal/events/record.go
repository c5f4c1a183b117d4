// Package events is the append-only notification log. Every successful
// lifecycle operation appends exactly one record inside its own transaction;
// indexers read the log by sequence cursor and may receive a record more
// than once.
package events

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"AgentBounty/internal/types"
)

// Record is one lifecycle notification.
type Record struct {
	Seq        uint64          `json:"seq"`                  // Seq is the log position, starting at 1
	Kind       types.EventKind `json:"kind"`                 // Kind selects which fields are meaningful
	BountyID   uint64          `json:"bounty_id"`            // BountyID is the subject bounty
	Actor      types.Pubkey    `json:"actor"`                // Actor is the poster or claimer
	Amount     uint64          `json:"amount,omitempty"`     // Amount is the reward, payout or refund
	Fee        uint64          `json:"fee,omitempty"`        // Fee is the protocol cut on approval
	Deadline   int64           `json:"deadline,omitempty"`   // Deadline is set on creation
	Submission string          `json:"submission,omitempty"` // Submission is set on WorkSubmitted
	Timestamp  int64           `json:"timestamp"`            // Timestamp is the commit time (unix seconds)
}

// Encode serializes the record as a FlatBuffers Event table.
func (r *Record) Encode() []byte {
	builder := flatbuffers.NewBuilder(128 + len(r.Submission))

	actorVec := builder.CreateByteVector(r.Actor[:])

	var submissionOff flatbuffers.UOffsetT
	if r.Submission != "" {
		submissionOff = builder.CreateString(r.Submission)
	}

	types.EventStart(builder)
	types.EventAddSeq(builder, r.Seq)
	types.EventAddKind(builder, r.Kind)
	types.EventAddBountyId(builder, r.BountyID)
	types.EventAddActor(builder, actorVec)
	types.EventAddAmount(builder, r.Amount)
	types.EventAddFee(builder, r.Fee)
	types.EventAddDeadline(builder, r.Deadline)
	if submissionOff != 0 {
		types.EventAddSubmission(builder, submissionOff)
	}
	types.EventAddTimestamp(builder, r.Timestamp)
	offset := types.EventEnd(builder)

	builder.Finish(offset)

	return builder.FinishedBytes()
}

// Decode parses an encoded Event table.
func Decode(data []byte) (rec *Record, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("event too short: %d bytes", len(data))
	}

	// FlatBuffers accessors panic on out-of-range offsets.
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("malformed event: %v", r)
		}
	}()

	ev := types.GetRootAsEvent(data, 0)

	actor, ok := types.PubkeyFromBytes(ev.ActorBytes())
	if !ok {
		return nil, fmt.Errorf("invalid actor length: %d", len(ev.ActorBytes()))
	}

	return &Record{
		Seq:        ev.Seq(),
		Kind:       ev.Kind(),
		BountyID:   ev.BountyId(),
		Actor:      actor,
		Amount:     ev.Amount(),
		Fee:        ev.Fee(),
		Deadline:   ev.Deadline(),
		Submission: string(ev.Submission()),
		Timestamp:  ev.Timestamp(),
	}, nil
}

// ID is the blake3 hash of the encoded record, stable across redeliveries.
func (r *Record) ID() [32]byte {
	return blake3.Sum256(r.Encode())
}

// MarshalJSON adds the hex record id to the JSON form.
func (r *Record) MarshalJSON() ([]byte, error) {
	type plain Record
	id := r.ID()

	return json.Marshal(struct {
		ID string `json:"id"`
		*plain
	}{hex.EncodeToString(id[:]), (*plain)(r)})
}

// Name returns the notification name (BountyCreated, WorkApproved, ...).
func (r *Record) Name() string {
	return r.Kind.String()
}
