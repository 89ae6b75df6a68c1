package coordinator

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
)

type tidInfo struct {
	participants   []string
	latestType     int
	decisionCommit bool
	filename       string
}

// Recover replays the coordinator's WAL before any live traffic is
// accepted (spec §4.5). For each TID it keeps only the latest record
// type; a TID whose latest record is a completion is left alone, one
// whose latest record shows no committed decision is re-announced as an
// ABORT without re-collecting acks, and one that committed has its
// destination artifact restored and re-enters AWAITING_ACKS from
// scratch.
func (c *Coordinator) Recover(path string) error {
	info := make(map[uint32]*tidInfo)
	var maxTID uint32

	err := wal.Replay(path, func(r wal.Record) error {
		if r.TID > maxTID {
			maxTID = r.TID
		}
		e, ok := info[r.TID]
		if !ok {
			e = &tidInfo{}
			info[r.TID] = e
		}
		switch r.Type {
		case wal.RecParticipantList:
			e.participants = r.Participants
			e.latestType = r.Type
		case wal.RecDecision:
			e.decisionCommit = r.Commit
			e.filename = r.Filename
			e.latestType = r.Type
		case wal.RecCompleted:
			e.latestType = r.Type
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.bumpTIDFloor(maxTID)

	for tid, e := range info {
		switch e.latestType {
		case wal.RecCompleted:
			continue
		case wal.RecParticipantList:
			c.recoverAbort(tid, e.participants)
		case wal.RecDecision:
			if e.decisionCommit {
				c.recoverCommit(tid, e.participants, e.filename)
			} else {
				c.recoverAbort(tid, e.participants)
			}
		}
	}
	return nil
}

// recoverAbort re-announces ABORT to every known participant of tid
// without re-entering ack collection (spec §4.5 rule 2: "Do not
// re-collect acks").
func (c *Coordinator) recoverAbort(tid uint32, participants []string) {
	c.log.Info("recovery: re-announcing ABORT", zap.Uint32("tid", tid), zap.Strings("participants", participants))
	msg := &wire.VoteOutcome{Txn: tid, Commit: false}
	body := msg.Encode()
	for _, addr := range participants {
		if err := c.transport.Send(addr, body); err != nil {
			c.log.Warn("recovery abort resend failed", zap.Uint32("tid", tid), zap.String("to", addr), zap.Error(err))
		}
	}
}

// recoverCommit restores the destination artifact from the collage blob
// (if it survived the crash) and re-enters AWAITING_ACKS from an empty
// ack set (spec §9: "resend and collect afresh" is the safe reading,
// since ack handlers are idempotent).
func (c *Coordinator) recoverCommit(tid uint32, participants []string, filename string) {
	c.log.Info("recovery: restoring commit", zap.Uint32("tid", tid), zap.String("filename", filename))
	if wal.BlobExists(c.dataDir, tid) {
		if err := wal.PublishArtifact(c.dataDir, tid, filename); err != nil {
			c.log.Error("recovery: failed to republish destination artifact", zap.Uint32("tid", tid), zap.Error(err))
		}
	} else {
		c.log.Warn("recovery: collage blob missing, destination may be stale", zap.Uint32("tid", tid))
	}

	participantFiles := make(map[string][]string, len(participants))
	for _, addr := range participants {
		participantFiles[addr] = nil
	}
	txn := newTransaction(c, tid, uuid.New().String(), filename, nil, participantFiles, participants)
	c.register(txn)
	go txn.awaitAcks(true)
}
