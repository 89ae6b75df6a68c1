// Package participant implements the per-node file-lock/staging state
// machine (spec §4.4): IDLE -> STAGED -> {APPLIED_COMMIT|APPLIED_ABORT}.
// A single process-wide mutex guards the lock set and the TID->files map;
// all lock/unlock decisions happen inside it (spec §5).
package participant

import (
	"fmt"
	"os"
	"sync"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/metrics"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/transport"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
	"go.uber.org/zap"
)

// Participant holds the runtime state for one node. CoordinatorAddr is
// the fixed address of the single coordinator this deployment talks to
// (spec §2: "Coordinator ... one per deployment ... a single, fixed
// identity") — the WAL's staged-commit record carries no coordinator
// address (spec §4.2), so recovery needs this out-of-band to know who to
// resend a reconstructed YES vote to.
type Participant struct {
	ID              string
	CoordinatorAddr string

	wal       *wal.Writer
	transport transport.Transport
	ask       AskUserFunc
	metrics   *metrics.Participant
	log       *zap.Logger

	mu           sync.Mutex
	locked       map[string]bool
	staged       map[uint32][]string
	applied      map[uint32]bool
	coordinators map[uint32]string // TID -> address that sent the VOTE_REQUEST (CoordinatorAddr for TIDs restored by Recover); recorded only, no send path reads it
}

// New constructs a participant. w is the participant's own WAL writer
// (already Open'd by the caller so the data directory is explicit); t is
// the transport this node listens and sends on.
func New(id, coordinatorAddr string, w *wal.Writer, t transport.Transport, ask AskUserFunc, m *metrics.Participant, log *zap.Logger) *Participant {
	if ask == nil {
		ask = AutoApprove
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Participant{
		ID:              id,
		CoordinatorAddr: coordinatorAddr,
		wal:             w,
		transport:       t,
		ask:             ask,
		metrics:         m,
		log:             log.With(zap.String("role", "participant"), zap.String("id", id)),
		locked:          make(map[string]bool),
		staged:          make(map[uint32][]string),
		applied:         make(map[uint32]bool),
		coordinators:    make(map[uint32]string),
	}
	t.OnMessage(p.dispatch)
	return p
}

// dispatch is the single message-dispatch handler this node's transport
// calls for every inbound frame (spec §5: "the participant handles each
// inbound message on the dispatch task").
func (p *Participant) dispatch(srcID string, body []byte) bool {
	msg, err := wire.Decode(body)
	if err != nil {
		p.log.Warn("dropping malformed frame", zap.String("from", srcID), zap.Error(err))
		return true
	}
	switch m := msg.(type) {
	case *wire.VoteRequest:
		p.handleVoteRequest(srcID, m)
	case *wire.VoteOutcome:
		p.handleVoteOutcome(srcID, m)
	default:
		p.log.Warn("unexpected message kind at participant", zap.Uint32("type", msg.Type()))
	}
	return true
}

// isLocked reports whether path is currently held by any transaction.
func (p *Participant) isLocked(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked[path]
}

// LockedFileCount is used by callers (and tests) that want to observe
// lock-set size without reaching into the mutex themselves.
func (p *Participant) LockedFileCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locked)
}

func (p *Participant) sendVote(coordinatorAddr string, tid uint32, vote bool) {
	msg := &wire.VoteResponse{Txn: tid, Vote: vote}
	if err := p.transport.Send(coordinatorAddr, msg.Encode()); err != nil {
		p.log.Warn("vote response send failed", zap.Uint32("tid", tid), zap.Error(err))
	}
}

func (p *Participant) sendAck(coordinatorAddr string, tid uint32) {
	msg := &wire.VoteAck{Txn: tid, ParticipantID: p.ID}
	if err := p.transport.Send(coordinatorAddr, msg.Encode()); err != nil {
		p.log.Warn("ack send failed", zap.Uint32("tid", tid), zap.Error(err))
	}
}

// appendAndSync is a small helper around the pattern every durability
// point in this state machine needs: append one WAL line then fsync
// before anything depending on it may be observed externally. A failure
// here is ErrLocalIO on the WAL write path, which spec §7 treats as
// fatal — the caller must not proceed as if the record were durable.
func (p *Participant) appendAndSync(line string) error {
	if err := p.wal.Append(line); err != nil {
		return err
	}
	if err := p.wal.Fsync(); err != nil {
		return err
	}
	return nil
}

// deleteIfExists removes path if it still exists on disk. Idempotent by
// construction (spec invariant 7): a second call after the file is
// already gone is a silent no-op, not an error.
func deleteIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("participant: stat %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("participant: remove %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	return nil
}
