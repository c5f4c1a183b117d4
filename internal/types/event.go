package types

import (
	"fmt"
	"strconv"

	flatbuffers "github.com/google/flatbuffers/go"
)

// EventKind tags the notification carried by an Event table.
type EventKind byte

const (
	EventKindNone            EventKind = 0
	EventKindBountyCreated   EventKind = 1
	EventKindBountyClaimed   EventKind = 2
	EventKindWorkSubmitted   EventKind = 3
	EventKindWorkApproved    EventKind = 4
	EventKindBountyCancelled EventKind = 5
)

// EnumNamesEventKind maps kinds to their wire names.
var EnumNamesEventKind = map[EventKind]string{
	EventKindNone:            "None",
	EventKindBountyCreated:   "BountyCreated",
	EventKindBountyClaimed:   "BountyClaimed",
	EventKindWorkSubmitted:   "WorkSubmitted",
	EventKindWorkApproved:    "WorkApproved",
	EventKindBountyCancelled: "BountyCancelled",
}

// EnumValuesEventKind maps wire names back to kinds.
var EnumValuesEventKind = map[string]EventKind{
	"None":            EventKindNone,
	"BountyCreated":   EventKindBountyCreated,
	"BountyClaimed":   EventKindBountyClaimed,
	"WorkSubmitted":   EventKindWorkSubmitted,
	"WorkApproved":    EventKindWorkApproved,
	"BountyCancelled": EventKindBountyCancelled,
}

func (v EventKind) String() string {
	if s, ok := EnumNamesEventKind[v]; ok {
		return s
	}
	return "EventKind(" + strconv.Itoa(int(v)) + ")"
}

// MarshalText encodes the kind by its wire name.
func (v EventKind) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a wire name.
func (v *EventKind) UnmarshalText(text []byte) error {
	kind, ok := EnumValuesEventKind[string(text)]
	if !ok {
		return fmt.Errorf("unknown event kind %q", text)
	}

	*v = kind

	return nil
}

// Event is the FlatBuffers table for one lifecycle notification.
//
//	table Event {
//	  seq:ulong;
//	  kind:EventKind;
//	  bounty_id:ulong;
//	  actor:[ubyte];
//	  amount:ulong;
//	  fee:ulong;
//	  deadline:long;
//	  submission:string;
//	  timestamp:long;
//	}
type Event struct {
	_tab flatbuffers.Table
}

func GetRootAsEvent(buf []byte, offset flatbuffers.UOffsetT) *Event {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &Event{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *Event) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *Event) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *Event) Seq() uint64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Event) Kind() EventKind {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return EventKind(rcv._tab.GetByte(o + rcv._tab.Pos))
	}
	return 0
}

func (rcv *Event) BountyId() uint64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Event) ActorBytes() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *Event) Amount() uint64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Event) Fee() uint64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Event) Deadline() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(16))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *Event) Submission() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(18))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *Event) Timestamp() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(20))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func EventStart(builder *flatbuffers.Builder) {
	builder.StartObject(9)
}
func EventAddSeq(builder *flatbuffers.Builder, seq uint64) {
	builder.PrependUint64Slot(0, seq, 0)
}
func EventAddKind(builder *flatbuffers.Builder, kind EventKind) {
	builder.PrependByteSlot(1, byte(kind), 0)
}
func EventAddBountyId(builder *flatbuffers.Builder, bountyId uint64) {
	builder.PrependUint64Slot(2, bountyId, 0)
}
func EventAddActor(builder *flatbuffers.Builder, actor flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(3, flatbuffers.UOffsetT(actor), 0)
}
func EventAddAmount(builder *flatbuffers.Builder, amount uint64) {
	builder.PrependUint64Slot(4, amount, 0)
}
func EventAddFee(builder *flatbuffers.Builder, fee uint64) {
	builder.PrependUint64Slot(5, fee, 0)
}
func EventAddDeadline(builder *flatbuffers.Builder, deadline int64) {
	builder.PrependInt64Slot(6, deadline, 0)
}
func EventAddSubmission(builder *flatbuffers.Builder, submission flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(7, flatbuffers.UOffsetT(submission), 0)
}
func EventAddTimestamp(builder *flatbuffers.Builder, timestamp int64) {
	builder.PrependInt64Slot(8, timestamp, 0)
}
func EventEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
