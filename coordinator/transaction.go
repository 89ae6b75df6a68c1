package coordinator

import (
	"sync"
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
	"go.uber.org/zap"
)

// transaction drives one TID through PREPARING, the decision, and
// AWAITING_ACKS on its own goroutine (spec §5: "one task per
// transaction").
type transaction struct {
	c *Coordinator

	tid              uint32
	filename         string
	image            []byte
	participantFiles map[string][]string
	order            []string // participant addresses, stable iteration order

	log *zap.Logger

	mu       sync.Mutex
	votes    map[string]bool // addr -> vote, dedupes duplicate YES/NO by participant id (spec §9)
	yesCount int
	closed   bool // true once PREPARING has produced a decision or timed out

	resultCh   chan bool // true=commit; written at most once
	resultOnce sync.Once

	acked map[string]bool
}

func newTransaction(c *Coordinator, tid uint32, requestID, filename string, image []byte, participantFiles map[string][]string, order []string) *transaction {
	return &transaction{
		c:                c,
		tid:              tid,
		filename:         filename,
		image:            image,
		participantFiles: participantFiles,
		order:            order,
		log:              c.log.With(zap.Uint32("tid", tid), zap.String("request_id", requestID)),
		votes:            make(map[string]bool),
		acked:            make(map[string]bool),
		resultCh:         make(chan bool, 1),
	}
}

// run is the transaction's entire lifecycle, from PREPARING through
// COMPLETED. It never returns an error: every failure degrades to a
// logged ABORT or a leaked-but-metered participant, per spec §7/§9.
func (t *transaction) run() {
	for _, addr := range t.order {
		t.sendVoteRequest(addr)
	}

	var commit bool
	select {
	case commit = <-t.resultCh:
	case <-time.After(VoteTimeout):
		commit = false
		t.log.Info("vote timeout, deciding ABORT", zap.Int("yes_votes", t.yesCount))
	}

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.decide(commit)
}

func (t *transaction) sendVoteRequest(addr string) {
	msg := &wire.VoteRequest{Txn: t.tid, Image: t.image, Files: t.participantFiles[addr]}
	if err := t.c.transport.Send(addr, msg.Encode()); err != nil {
		t.log.Warn("vote request send failed", zap.String("to", addr), zap.Error(err))
	}
}

// recordResult is the single writer of resultCh: the first of (all-yes,
// any-no) to call it wins, everything after is a no-op. The vote timeout
// does not pass through here; run's select handles it directly.
func (t *transaction) recordResult(commit bool) {
	t.resultOnce.Do(func() {
		t.resultCh <- commit
	})
}

// handleVote is invoked from the coordinator's dispatch goroutine for a
// VOTE_RESPONSE addressed to this TID. Votes are deduped by participant
// id (spec §9's resolution of the duplicate-YES open question) and
// dropped outright once PREPARING has closed (spec §4.3: "vote arriving
// after the deadline is ignored").
func (t *transaction) handleVote(addr string, vote bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if t.c.metrics != nil {
			t.c.metrics.Votes.WithLabelValues("late").Inc()
		}
		return
	}
	if _, seen := t.votes[addr]; seen {
		t.mu.Unlock()
		return
	}
	t.votes[addr] = vote
	if vote {
		t.yesCount++
	}
	allYes := vote && t.yesCount == len(t.order)
	decideAbort := !vote
	t.mu.Unlock()

	if t.c.metrics != nil {
		if vote {
			t.c.metrics.Votes.WithLabelValues("yes").Inc()
		} else {
			t.c.metrics.Votes.WithLabelValues("no").Inc()
		}
	}

	if decideAbort {
		t.recordResult(false)
	} else if allYes {
		t.recordResult(true)
	}
}

// decide makes the coordinator's decision durable and, on commit,
// publishes the destination artifact, then moves on to AWAITING_ACKS.
// Invariant 4: the decision record (and the blob it references) must be
// fsynced before any outcome message is sent and before the destination
// is published.
func (t *transaction) decide(commit bool) {
	imgPath := ""
	if commit {
		if err := wal.LogCollage(t.c.dataDir, t.tid, t.image); err != nil {
			t.log.Error("failed to write collage blob, deciding ABORT instead", zap.Error(err))
			commit = false
		} else {
			imgPath = wal.BlobPath(t.c.dataDir, t.tid)
		}
	}

	if err := t.c.appendAndSync(wal.EncodeDecision(t.tid, commit, t.filename, imgPath)); err != nil {
		t.log.Error("failed to log decision, transaction cannot proceed", zap.Error(err))
		return
	}

	if t.c.metrics != nil {
		outcome := "abort"
		if commit {
			outcome = "commit"
		}
		t.c.metrics.Decisions.WithLabelValues(outcome).Inc()
	}

	if commit {
		if err := wal.PublishArtifact(t.c.dataDir, t.tid, t.filename); err != nil {
			t.log.Error("failed to publish destination artifact, will retry on recovery", zap.Error(err))
		}
	}

	t.log.Info("decision reached", zap.Bool("commit", commit))
	t.awaitAcks(commit)
}

// awaitAcks implements AWAITING_ACKS: broadcast VOTE_OUTCOME to every
// known participant, not only those who voted YES (spec §4.3: abort
// notifications must reach everyone so locks are released), then retry
// against non-ackers every AckTimeout up to MaxRetries before giving up.
func (t *transaction) awaitAcks(commit bool) {
	t.broadcastOutcome(commit)

	for round := 0; round < MaxRetries; round++ {
		time.Sleep(AckTimeout)
		if t.allAcked() {
			t.complete()
			return
		}
		t.resendOutcomeToNonAckers(commit)
	}

	if !t.allAcked() {
		t.log.Warn("ack collection exhausted MAX_RETRIES, some participants may have leaked state")
		if t.c.metrics != nil {
			t.c.metrics.TransactionsLeaked.Inc()
		}
	}
	t.complete()
}

func (t *transaction) broadcastOutcome(commit bool) {
	msg := &wire.VoteOutcome{Txn: t.tid, Commit: commit}
	body := msg.Encode()
	for _, addr := range t.order {
		if err := t.c.transport.Send(addr, body); err != nil {
			t.log.Warn("outcome send failed", zap.String("to", addr), zap.Error(err))
		}
	}
}

func (t *transaction) resendOutcomeToNonAckers(commit bool) {
	msg := &wire.VoteOutcome{Txn: t.tid, Commit: commit}
	body := msg.Encode()
	t.mu.Lock()
	var pending []string
	for _, addr := range t.order {
		if !t.acked[addr] {
			pending = append(pending, addr)
		}
	}
	t.mu.Unlock()
	for _, addr := range pending {
		if err := t.c.transport.Send(addr, body); err != nil {
			t.log.Warn("outcome retransmit failed", zap.String("to", addr), zap.Error(err))
		}
	}
}

func (t *transaction) allAcked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.acked) == len(t.order)
}

// handleAck records a VOTE_ACK. An ack for an unknown participant address
// (not part of this TID's participant list) is dropped, matching the
// coordinator-side half of spec §7's UnknownTransaction policy.
func (t *transaction) handleAck(addr string) {
	t.mu.Lock()
	if _, ok := t.participantFiles[addr]; !ok {
		t.mu.Unlock()
		return
	}
	t.acked[addr] = true
	t.mu.Unlock()
}

func (t *transaction) complete() {
	if err := t.c.appendAndSync(wal.EncodeCompleted(t.tid)); err != nil {
		t.log.Error("failed to log completion", zap.Error(err))
		return
	}
	t.log.Info("transaction completed")
}
