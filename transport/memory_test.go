package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
	"github.com/stretchr/testify/require"
)

func TestMemorySendDeliversToHandler(t *testing.T) {
	net := NewNetwork()
	a := net.NewNode("A")
	b := net.NewNode("B")

	received := make(chan []byte, 1)
	b.OnMessage(func(srcID string, body []byte) bool {
		require.Equal(t, "A", srcID)
		received <- body
		return true
	})

	require.NoError(t, a.Send("B", []byte("hello")))

	select {
	case body := <-received:
		require.Equal(t, []byte("hello"), body)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestMemorySendUnknownDestination(t *testing.T) {
	net := NewNetwork()
	a := net.NewNode("A")
	err := a.Send("ghost", []byte("x"))
	require.ErrorIs(t, err, faults.ErrTransportUnavailable)
}

func TestMemorySendAfterCloseFails(t *testing.T) {
	net := NewNetwork()
	a := net.NewNode("A")
	net.NewNode("B")
	require.NoError(t, a.Close())
	err := a.Send("B", []byte("x"))
	require.ErrorIs(t, err, faults.ErrTransportUnavailable)
}

func TestMemoryClosedDestinationDropsMessage(t *testing.T) {
	net := NewNetwork()
	a := net.NewNode("A")
	b := net.NewNode("B")
	var mu sync.Mutex
	count := 0
	b.OnMessage(func(srcID string, body []byte) bool {
		mu.Lock()
		count++
		mu.Unlock()
		return true
	})
	require.NoError(t, b.Close())
	require.NoError(t, a.Send("B", []byte("x")))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestMemoryMutationAfterSendDoesNotAffectDelivered(t *testing.T) {
	net := NewNetwork()
	a := net.NewNode("A")
	b := net.NewNode("B")
	received := make(chan []byte, 1)
	b.OnMessage(func(srcID string, body []byte) bool {
		received <- body
		return true
	})
	payload := []byte{1, 2, 3}
	require.NoError(t, a.Send("B", payload))
	payload[0] = 0xFF // mutate after Send returns

	select {
	case body := <-received:
		require.Equal(t, byte(1), body[0])
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}
