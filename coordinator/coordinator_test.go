package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/metrics"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/participant"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/transport"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, net *transport.Network) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.Open(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	node := net.NewNode("coordinator")
	c := New("coordinator", dir, w, node, metrics.NewCoordinator(prometheus.NewRegistry()), nil)
	return c, dir
}

func newTestParticipantNode(t *testing.T, net *transport.Network, id string, ask participant.AskUserFunc) (*participant.Participant, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.Open(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	node := net.NewNode(id)
	p := participant.New(id, "coordinator", w, node, ask, metrics.NewParticipant(prometheus.NewRegistry()), nil)
	return p, dir
}

func TestSingleParticipantHappyCommit(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	_, aDir := newTestParticipantNode(t, net, "A", participant.AutoApprove)

	srcPath := filepath.Join(aDir, "a.png")
	require.NoError(t, os.WriteFile(srcPath, []byte("source"), 0o644))

	dest := filepath.Join(cDir, "out.png")
	image := []byte{1, 2, 3, 4}
	tid, err := c.StartCommit(dest, image, []string{"A:" + srcPath})
	require.NoError(t, err)
	require.Equal(t, uint32(1), tid)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(dest)
		return err == nil && len(data) == 4
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(srcPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, image, data)
}

func TestTwoParticipantsOneRefusesAborts(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	_, aDir := newTestParticipantNode(t, net, "A", participant.AutoApprove)
	refuse := func(_ []byte, _ []string) bool { return false }
	_, bDir := newTestParticipantNode(t, net, "B", refuse)

	aPath := filepath.Join(aDir, "a")
	bPath := filepath.Join(bDir, "b")
	require.NoError(t, os.WriteFile(aPath, []byte("a-bytes"), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte("b-bytes"), 0o644))

	dest := filepath.Join(cDir, "out.png")
	_, err := c.StartCommit(dest, []byte{9, 9}, []string{"A:" + aPath, "B:" + bPath})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err), "destination must not be created on abort")

	_, err = os.Stat(aPath)
	require.NoError(t, err, "A's file must remain on disk after abort")
	_, err = os.Stat(bPath)
	require.NoError(t, err)
}

func TestVoteTimeoutDecidesAbort(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	// Register a node that never responds to VOTE_REQUEST.
	silent := net.NewNode("A")
	silent.OnMessage(func(_ string, _ []byte) bool { return true })

	dest := filepath.Join(cDir, "out.png")
	_, err := c.StartCommit(dest, []byte{1}, []string{"A:/tmp/whatever"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(dest)
		return os.IsNotExist(statErr)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDuplicateAckAfterCommitIsTolerated(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	_, aDir := newTestParticipantNode(t, net, "A", participant.AutoApprove)

	srcPath := filepath.Join(aDir, "a.png")
	require.NoError(t, os.WriteFile(srcPath, []byte("source"), 0o644))

	// Dropping A's ack at the network level isn't available here, so this
	// does not exercise retransmission after AckTimeout. It checks the
	// duplicate-ack side of that path instead: acks repeated for the same
	// TID and participant leave the transaction fully acked.
	dest := filepath.Join(cDir, "out.png")
	tid, err := c.StartCommit(dest, []byte{1, 2}, []string{"A:" + srcPath})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(dest)
		return statErr == nil
	}, 2*time.Second, 10*time.Millisecond)

	txn, ok := c.lookup(tid)
	require.True(t, ok)
	txn.handleAck("A")
	txn.handleAck("A")
	require.True(t, txn.allAcked())
}

func TestDuplicateYesVotesAreDeduped(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	net.NewNode("A")

	dest := filepath.Join(cDir, "out.png")
	tid, err := c.StartCommit(dest, []byte{1}, []string{"A:/tmp/x"})
	require.NoError(t, err)

	txn, ok := c.lookup(tid)
	require.True(t, ok)
	txn.handleVote("A", true)
	txn.handleVote("A", true)
	txn.handleVote("A", true)

	txn.mu.Lock()
	yes := txn.yesCount
	txn.mu.Unlock()
	require.Equal(t, 1, yes, "duplicate YES votes from the same participant must be deduped")
}

func TestRecoverReannouncesAbortForUndecidedTransaction(t *testing.T) {
	net := transport.NewNetwork()
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	w, err := wal.Open(walPath)
	require.NoError(t, err)
	require.NoError(t, w.Append(wal.EncodeParticipantList(3, []string{"A"})))
	require.NoError(t, w.Fsync())
	require.NoError(t, w.Close())

	w2, err := wal.Open(walPath)
	require.NoError(t, err)
	node := net.NewNode("coordinator")
	a := net.NewNode("A")
	outcomes := make(chan *wire.VoteOutcome, 1)
	a.OnMessage(func(_ string, body []byte) bool {
		m, _ := wire.Decode(body)
		outcomes <- m.(*wire.VoteOutcome)
		return true
	})

	c := New("coordinator", dir, w2, node, metrics.NewCoordinator(prometheus.NewRegistry()), nil)
	require.NoError(t, c.Recover(walPath))

	m := <-outcomes
	require.Equal(t, uint32(3), m.Txn)
	require.False(t, m.Commit)
}

func TestRecoverRestoresCommittedArtifactAndAwaitsAcks(t *testing.T) {
	net := transport.NewNetwork()
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	w, err := wal.Open(walPath)
	require.NoError(t, err)

	require.NoError(t, wal.LogCollage(dir, 5, []byte{7, 8, 9}))
	dest := filepath.Join(dir, "out.png")
	require.NoError(t, w.Append(wal.EncodeParticipantList(5, []string{"A"})))
	require.NoError(t, w.Append(wal.EncodeDecision(5, true, dest, wal.BlobPath(dir, 5))))
	require.NoError(t, w.Fsync())
	require.NoError(t, w.Close())

	w2, err := wal.Open(walPath)
	require.NoError(t, err)
	node := net.NewNode("coordinator")
	a := net.NewNode("A")
	outcomes := make(chan *wire.VoteOutcome, 1)
	a.OnMessage(func(_ string, body []byte) bool {
		m, _ := wire.Decode(body)
		outcomes <- m.(*wire.VoteOutcome)
		return true
	})

	c := New("coordinator", dir, w2, node, metrics.NewCoordinator(prometheus.NewRegistry()), nil)
	require.NoError(t, c.Recover(walPath))

	m := <-outcomes
	require.Equal(t, uint32(5), m.Txn)
	require.True(t, m.Commit)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 8, 9}, data)
}

func TestStartCommitAllocatesMonotonicTIDs(t *testing.T) {
	net := transport.NewNetwork()
	c, cDir := newTestCoordinator(t, net)
	net.NewNode("A")

	dest := filepath.Join(cDir, "out.png")
	tid1, err := c.StartCommit(dest, []byte{1}, []string{"A:/tmp/x"})
	require.NoError(t, err)
	tid2, err := c.StartCommit(dest, []byte{1}, []string{"A:/tmp/y"})
	require.NoError(t, err)
	require.Less(t, tid1, tid2)
}
