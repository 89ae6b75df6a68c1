// Package coordinator implements the single fixed coordinator of the
// protocol (spec §4.3): INIT -> PREPARING -> {DECIDE_COMMIT|DECIDE_ABORT}
// -> AWAITING_ACKS -> COMPLETED. One goroutine drives each transaction
// from startCommit through to its completion record.
package coordinator

import (
	"strings"
	"sync"
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/metrics"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/transport"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	VoteTimeout = 3 * time.Second
	AckTimeout  = 3 * time.Second
	MaxRetries  = 20
)

// Coordinator is the single, fixed-identity node driving every transaction
// in this deployment (spec §2/§9: "no leader election").
type Coordinator struct {
	ID      string
	dataDir string

	wal       *wal.Writer
	transport transport.Transport
	metrics   *metrics.Coordinator
	log       *zap.Logger

	mu      sync.Mutex
	nextTID uint32
	txns    map[uint32]*transaction
}

// New constructs a coordinator. dataDir is where <tid>_img.bin side-files
// are written (spec §4.2).
func New(id, dataDir string, w *wal.Writer, t transport.Transport, m *metrics.Coordinator, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		ID:        id,
		dataDir:   dataDir,
		wal:       w,
		transport: t,
		metrics:   m,
		log:       log.With(zap.String("role", "coordinator"), zap.String("id", id)),
		nextTID:   1,
		txns:      make(map[uint32]*transaction),
	}
	t.OnMessage(c.dispatch)
	return c
}

func (c *Coordinator) dispatch(srcID string, body []byte) bool {
	msg, err := wire.Decode(body)
	if err != nil {
		c.log.Warn("dropping malformed frame", zap.String("from", srcID), zap.Error(err))
		return true
	}
	switch m := msg.(type) {
	case *wire.VoteResponse:
		c.handleVoteResponse(srcID, m)
	case *wire.VoteAck:
		c.handleVoteAck(srcID, m)
	default:
		c.log.Warn("unexpected message kind at coordinator", zap.Uint32("type", msg.Type()))
	}
	return true
}

// allocTID returns the next process-local TID, never reused within a run.
func (c *Coordinator) allocTID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	tid := c.nextTID
	c.nextTID++
	return tid
}

// bumpTIDFloor raises the allocator above tid so recovery-discovered TIDs
// can never collide with a freshly allocated one (spec §4.5).
func (c *Coordinator) bumpTIDFloor(tid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tid >= c.nextTID {
		c.nextTID = tid + 1
	}
}

func (c *Coordinator) register(txn *transaction) {
	c.mu.Lock()
	c.txns[txn.tid] = txn
	c.mu.Unlock()
}

func (c *Coordinator) lookup(tid uint32) (*transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.txns[tid]
	return t, ok
}

// StartCommit parses each source at its first ':' into (address, path),
// groups files per participant address, allocates a fresh TID, durably
// logs the participant list, and spawns the transaction's driving
// goroutine. It never fails to its caller (spec §7): the returned error is
// always nil, and the allocated TID is returned immediately, before the
// protocol has even entered PREPARING. A failure to log the participant
// list is not propagated — no VOTE_REQUEST has gone out yet, so no
// participant has made any promise about this TID — the transaction is
// simply never spawned, the same way decide() swallows a logging failure
// internally instead of surfacing it to an external caller.
func (c *Coordinator) StartCommit(filename string, image []byte, sources []string) (uint32, error) {
	participantFiles := make(map[string][]string)
	var order []string
	for _, src := range sources {
		addr, path, ok := splitSource(src)
		if !ok {
			continue
		}
		if _, seen := participantFiles[addr]; !seen {
			order = append(order, addr)
		}
		participantFiles[addr] = append(participantFiles[addr], path)
	}

	tid := c.allocTID()
	// requestID correlates this StartCommit call's log lines across the
	// coordinator and every participant it fans out to, independent of
	// the TID itself (spec §3 pins the TID to a process-local uint32, so
	// a UUID carries the cross-node tracing concern instead).
	requestID := uuid.New().String()
	txn := newTransaction(c, tid, requestID, filename, image, participantFiles, order)

	if err := c.appendAndSync(wal.EncodeParticipantList(tid, order)); err != nil {
		txn.log.Error("failed to log participant list, transaction never starts", zap.Error(err))
		return tid, nil
	}

	c.register(txn)
	go txn.run()
	return tid, nil
}

// splitSource parses "<address>:<filepath>" at the first colon only, so
// paths may contain further colons (spec §6).
func splitSource(src string) (addr, path string, ok bool) {
	i := strings.IndexByte(src, ':')
	if i < 0 {
		return "", "", false
	}
	return src[:i], src[i+1:], true
}

func (c *Coordinator) appendAndSync(line string) error {
	if err := c.wal.Append(line); err != nil {
		return err
	}
	start := time.Now()
	err := c.wal.Fsync()
	if c.metrics != nil {
		c.metrics.FsyncSeconds.Observe(time.Since(start).Seconds())
	}
	return err
}
