// Package transport is the injected messaging capability spec.md places
// out of scope for the commit protocol itself (§1, §6): asynchronous,
// unreliable, unordered delivery of self-contained framed byte payloads.
// The protocol layers (coordinator, participant, recovery) depend only on
// the Transport interface below; Memory and TCP are two concrete
// implementations, used by tests and by the cmd/ binaries respectively.
package transport

// Handler consumes one inbound message from srcID. Returning true tells
// the transport the message was accepted (spec §6: onMessage -> bool);
// returning false asks the transport to requeue it for later delivery.
// The protocol layers in this module always return true — every message
// kind they handle is processed to completion or defensively dropped, so
// nothing is ever requeued — but the hook exists because the spec names
// it as part of the transport contract the embedding environment offers.
// Neither Memory nor TCP requeues: both ignore the returned value.
type Handler func(srcID string, body []byte) bool

// Transport is the capability the coordinator and participant state
// machines depend on. Send is non-blocking and best-effort: it may fail
// (faults.ErrTransportUnavailable) or the message may simply never
// arrive; the protocol's timers, not Send's return value, drive retry.
type Transport interface {
	// Send delivers body to destID. Best-effort: a nil error means the
	// transport accepted the message for delivery, not that it arrived.
	Send(destID string, body []byte) error

	// OnMessage registers the handler invoked for every message this
	// transport delivers. Only one handler is supported per transport,
	// matching each node having exactly one dispatch loop (spec §5).
	OnMessage(handler Handler)

	// LocalID is the address this transport answers to.
	LocalID() string

	// Close releases any transport-owned resources (listeners,
	// connections). Pending sends may be dropped.
	Close() error
}
