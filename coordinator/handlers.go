package coordinator

import (
	"go.uber.org/zap"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
)

// handleVoteResponse routes an inbound VOTE_RESPONSE to its transaction.
// A response for a TID the coordinator no longer knows about (never
// started this run, or already recovered-and-forgotten) is dropped
// silently, matching spec §4.3's "vote arriving after the deadline is
// ignored" generalized to "transaction not in memory at all."
func (c *Coordinator) handleVoteResponse(srcID string, m *wire.VoteResponse) {
	txn, ok := c.lookup(m.Txn)
	if !ok {
		c.log.Warn("vote response for unknown transaction, dropping", zap.Uint32("tid", m.Txn), zap.String("from", srcID))
		return
	}
	txn.handleVote(srcID, m.Vote)
}

// handleVoteAck routes an inbound VOTE_ACK. An ack for an unknown TID is
// dropped (spec §4.3, §7: "An ACK for an unknown TID is dropped").
func (c *Coordinator) handleVoteAck(srcID string, m *wire.VoteAck) {
	txn, ok := c.lookup(m.Txn)
	if !ok {
		c.log.Warn("ack for unknown transaction, dropping", zap.Uint32("tid", m.Txn), zap.String("from", srcID))
		return
	}
	txn.handleAck(srcID)
}
