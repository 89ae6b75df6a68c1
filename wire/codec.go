package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
)

const headerLen = 8 // u32 type + u32 tid

// Decode parses a single self-contained frame. A frame that is truncated,
// or that declares a length-prefixed field exceeding the remaining bytes,
// yields faults.ErrMalformedFrame. The caller must drop the frame (tell the
// transport "accepted and discarded") rather than propagate the error as a
// protocol signal.
func Decode(data []byte) (Message, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("decode header: %w", faults.ErrMalformedFrame)
	}
	msgType := binary.BigEndian.Uint32(data[0:4])
	tid := binary.BigEndian.Uint32(data[4:8])
	body := data[headerLen:]

	switch msgType {
	case TypeVoteRequest:
		return decodeVoteRequest(tid, body)
	case TypeVoteOutcome:
		return decodeVoteOutcome(tid, body)
	case TypeVoteResponse:
		return decodeVoteResponse(tid, body)
	case TypeVoteAck:
		return decodeVoteAck(tid, body)
	default:
		return nil, fmt.Errorf("decode: unknown message type %d: %w", msgType, faults.ErrMalformedFrame)
	}
}

func encodeHeader(buf []byte, msgType, tid uint32) []byte {
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(buf[0:4], msgType)
	binary.BigEndian.PutUint32(buf[4:8], tid)
	return buf
}

func putUTF(buf []byte, s string) []byte {
	b := []byte(s)
	lenPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPrefix, uint16(len(b)))
	buf = append(buf, lenPrefix...)
	buf = append(buf, b...)
	return buf
}

func takeUTF(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("utf length prefix: %w", faults.ErrMalformedFrame)
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	data = data[2:]
	if len(data) < n {
		return "", nil, fmt.Errorf("utf body: %w", faults.ErrMalformedFrame)
	}
	return string(data[:n]), data[n:], nil
}

func takeU32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("u32: %w", faults.ErrMalformedFrame)
	}
	return binary.BigEndian.Uint32(data[0:4]), data[4:], nil
}

func takeBool(data []byte) (bool, []byte, error) {
	if len(data) < 1 {
		return false, nil, fmt.Errorf("bool: %w", faults.ErrMalformedFrame)
	}
	return data[0] != 0, data[1:], nil
}

// --- VoteRequest ---

func (m *VoteRequest) Encode() []byte {
	buf := make([]byte, 0, headerLen+4+len(m.Image)+4)
	buf = encodeHeader(buf, TypeVoteRequest, m.Txn)
	imgLen := make([]byte, 4)
	binary.BigEndian.PutUint32(imgLen, uint32(len(m.Image)))
	buf = append(buf, imgLen...)
	buf = append(buf, m.Image...)
	nFiles := make([]byte, 4)
	binary.BigEndian.PutUint32(nFiles, uint32(len(m.Files)))
	buf = append(buf, nFiles...)
	for _, f := range m.Files {
		buf = putUTF(buf, f)
	}
	return buf
}

func decodeVoteRequest(tid uint32, body []byte) (*VoteRequest, error) {
	imgLen, rest, err := takeU32(body)
	if err != nil {
		return nil, err
	}
	if uint64(len(rest)) < uint64(imgLen) {
		return nil, fmt.Errorf("image body: %w", faults.ErrMalformedFrame)
	}
	image := rest[:imgLen]
	rest = rest[imgLen:]

	nFiles, rest, err := takeU32(rest)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, nFiles)
	for i := uint32(0); i < nFiles; i++ {
		var f string
		f, rest, err = takeUTF(rest)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	imageCopy := make([]byte, len(image))
	copy(imageCopy, image)
	return &VoteRequest{Txn: tid, Image: imageCopy, Files: files}, nil
}

// --- VoteOutcome ---

func (m *VoteOutcome) Encode() []byte {
	buf := make([]byte, 0, headerLen+1)
	buf = encodeHeader(buf, TypeVoteOutcome, m.Txn)
	if m.Commit {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeVoteOutcome(tid uint32, body []byte) (*VoteOutcome, error) {
	commit, _, err := takeBool(body)
	if err != nil {
		return nil, err
	}
	return &VoteOutcome{Txn: tid, Commit: commit}, nil
}

// --- VoteResponse ---

func (m *VoteResponse) Encode() []byte {
	buf := make([]byte, 0, headerLen+1)
	buf = encodeHeader(buf, TypeVoteResponse, m.Txn)
	if m.Vote {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeVoteResponse(tid uint32, body []byte) (*VoteResponse, error) {
	vote, _, err := takeBool(body)
	if err != nil {
		return nil, err
	}
	return &VoteResponse{Txn: tid, Vote: vote}, nil
}

// --- VoteAck ---

func (m *VoteAck) Encode() []byte {
	buf := make([]byte, 0, headerLen+2+len(m.ParticipantID))
	buf = encodeHeader(buf, TypeVoteAck, m.Txn)
	buf = putUTF(buf, m.ParticipantID)
	return buf
}

func decodeVoteAck(tid uint32, body []byte) (*VoteAck, error) {
	id, _, err := takeUTF(body)
	if err != nil {
		return nil, err
	}
	return &VoteAck{Txn: tid, ParticipantID: id}, nil
}
