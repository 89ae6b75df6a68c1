// Package wire implements the binary message codec shared between
// coordinator and participant (spec §4.1). Every frame begins with a u32
// message type and a u32 transaction id, followed by type-specific fields.
// Length-prefixed strings use a two-byte big-endian length followed by the
// UTF-8 bytes, matching the standard Java DataOutputStream/DataInputStream
// encoding, so the framing is bit-compatible with the original JVM nodes.
package wire

// Message types, in the order spec §4.1 lists them.
const (
	TypeVoteRequest  uint32 = 0 // coordinator -> participant
	TypeVoteOutcome  uint32 = 1 // coordinator -> participant
	TypeVoteResponse uint32 = 2 // participant -> coordinator
	TypeVoteAck      uint32 = 3 // participant -> coordinator
)

// Message is implemented by every frame type. TID is the transaction this
// frame belongs to; Type is one of the Type* constants; Encode produces the
// wire bytes for the frame body (header included).
type Message interface {
	Type() uint32
	TID() uint32
	Encode() []byte
}

// VoteRequest carries the image and the participant's slice of source
// files for a proposed commit.
type VoteRequest struct {
	Txn   uint32
	Image []byte
	Files []string
}

func (m *VoteRequest) Type() uint32 { return TypeVoteRequest }
func (m *VoteRequest) TID() uint32  { return m.Txn }

// VoteOutcome carries the coordinator's binding decision for a TID.
type VoteOutcome struct {
	Txn    uint32
	Commit bool
}

func (m *VoteOutcome) Type() uint32 { return TypeVoteOutcome }
func (m *VoteOutcome) TID() uint32  { return m.Txn }

// VoteResponse carries a participant's YES/NO vote for a TID.
type VoteResponse struct {
	Txn  uint32
	Vote bool
}

func (m *VoteResponse) Type() uint32 { return TypeVoteResponse }
func (m *VoteResponse) TID() uint32  { return m.Txn }

// VoteAck carries a participant's confirmation that a decision has been
// applied locally.
type VoteAck struct {
	Txn           uint32
	ParticipantID string
}

func (m *VoteAck) Type() uint32 { return TypeVoteAck }
func (m *VoteAck) TID() uint32  { return m.Txn }
