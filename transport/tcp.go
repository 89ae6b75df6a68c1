package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
)

// TCP is a length-prefixed framed transport over plain TCP. A node's id
// doubles as the address other nodes dial to reach it, so Send needs no
// separate peer directory: spec §3 calls participant addresses "opaque",
// and an opaque string that happens to be "host:port" is a perfectly
// legitimate choice for this injected capability.
//
// Each frame on the wire is:
//
//	u16 srcIDLen, srcID bytes, u32 bodyLen, body bytes
//
// grounded on the teacher's server.go (net.Listen/Accept loop) and
// rpc.DialServer (dial-with-retry), but carrying our own framing instead
// of net/rpc+gob since the payload is already wire.Message bytes.
type TCP struct {
	id string

	ln net.Listener

	mu      sync.Mutex
	conns   map[string]net.Conn
	handler Handler
	closed  bool

	wg sync.WaitGroup

	DialRetries int
	DialBackoff time.Duration
}

// NewTCP starts listening on listenAddr (which becomes this node's id)
// and begins accepting inbound connections in the background.
func NewTCP(listenAddr string) (*TCP, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w: %v", listenAddr, faults.ErrTransportUnavailable, err)
	}
	t := &TCP{
		id:          ln.Addr().String(),
		ln:          ln,
		conns:       make(map[string]net.Conn),
		DialRetries: 3,
		DialBackoff: 2 * time.Second,
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

func (t *TCP) LocalID() string { return t.id }

func (t *TCP) OnMessage(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return // listener closed
		}
		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()
	for {
		srcID, body, err := readFrame(conn)
		if err != nil {
			return
		}
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			h(srcID, body)
		}
	}
}

func readFrame(r io.Reader) (string, []byte, error) {
	var idLen uint16
	if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
		return "", nil, err
	}
	idBuf := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBuf); err != nil {
		return "", nil, err
	}
	var bodyLen uint32
	if err := binary.Read(r, binary.BigEndian, &bodyLen); err != nil {
		return "", nil, err
	}
	bodyBuf := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, bodyBuf); err != nil {
		return "", nil, err
	}
	return string(idBuf), bodyBuf, nil
}

func writeFrame(w io.Writer, srcID string, body []byte) error {
	buf := make([]byte, 0, 2+len(srcID)+4+len(body))
	idLen := make([]byte, 2)
	binary.BigEndian.PutUint16(idLen, uint16(len(srcID)))
	buf = append(buf, idLen...)
	buf = append(buf, srcID...)
	bodyLen := make([]byte, 4)
	binary.BigEndian.PutUint32(bodyLen, uint32(len(body)))
	buf = append(buf, bodyLen...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Send dials destID (reusing a cached connection when possible) and
// writes one frame. Best-effort: a dial or write failure is reported as
// faults.ErrTransportUnavailable and the cached connection, if any, is
// dropped so the next Send redials.
func (t *TCP) Send(destID string, body []byte) error {
	conn, err := t.connFor(destID)
	if err != nil {
		return err
	}
	if err := writeFrame(conn, t.id, body); err != nil {
		t.mu.Lock()
		delete(t.conns, destID)
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport: write to %s: %w: %v", destID, faults.ErrTransportUnavailable, err)
	}
	return nil
}

func (t *TCP) connFor(destID string) (net.Conn, error) {
	t.mu.Lock()
	if c, ok := t.conns[destID]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	var conn net.Conn
	var err error
	retries := t.DialRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		conn, err = net.Dial("tcp", destID)
		if err == nil {
			break
		}
		if i < retries-1 {
			time.Sleep(t.DialBackoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w: %v", destID, faults.ErrTransportUnavailable, err)
	}

	t.mu.Lock()
	t.conns[destID] = conn
	t.mu.Unlock()
	return conn, nil
}

// Close shuts the listener and every cached outbound connection.
func (t *TCP) Close() error {
	t.mu.Lock()
	t.closed = true
	for id, c := range t.conns {
		c.Close()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	err := t.ln.Close()
	t.wg.Wait()
	return err
}
