// Package faults names the error kinds shared across the codec, WAL,
// transport, coordinator, and participant layers (spec §7). Call sites wrap
// these with fmt.Errorf("...: %w", ...) to add context; callers that need to
// branch on kind use errors.Is against the sentinels below.
package faults

import "errors"

var (
	// ErrMalformedFrame means the codec could not parse a received message:
	// the fixed header or a length-prefixed field was truncated, or a
	// declared length exceeded the remaining bytes. The frame is dropped.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrTransportUnavailable means a send failed. Treated as message loss;
	// only timers drive retry, nothing escalates this to the caller.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrLocalIO means a log write, blob write, file delete, or
	// destination publish failed. On the WAL write path this is fatal.
	ErrLocalIO = errors.New("local I/O error")

	// ErrProtocolTimeout means a phase deadline elapsed without the
	// expected quorum of replies or acks.
	ErrProtocolTimeout = errors.New("protocol timeout")

	// ErrUnknownTransaction means a message referenced a TID not held in
	// memory. Participants ack and log completion defensively; the
	// coordinator drops the message.
	ErrUnknownTransaction = errors.New("unknown transaction")
)
