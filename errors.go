package stomp

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (spec §7). Use errors.Is against these; richer
// variants (StompError, timeout) carry additional data and support
// errors.As.
var (
	// ErrProtocol marks an unparseable frame, a missing required header, an
	// unexpected command during handshake, or an unknown command token.
	ErrProtocol = errors.New("stomp: protocol error")

	// ErrPeerFailed marks that the pacemaker observed no inbound activity
	// for 2x the negotiated server-to-client interval.
	ErrPeerFailed = errors.New("stomp: peer failed (no heartbeat)")

	// ErrNoAckHeader marks that a caller tried to ack a frame lacking an
	// "ack" header.
	ErrNoAckHeader = errors.New("stomp: frame has no ack header")

	// ErrConnectionClosed marks that a caller tried to submit a request on
	// a connection whose multiplexer has already terminated.
	ErrConnectionClosed = errors.New("stomp: connection closed")
)

// StompErrorFrame wraps a server ERROR frame received during the CONNECT
// handshake (spec §7, "StompError(Frame)"). It is fatal: the connection
// never establishes.
type StompErrorFrame struct {
	Frame *Frame
}

func (e *StompErrorFrame) Error() string {
	if e.Frame == nil {
		return "stomp: server sent ERROR"
	}
	msg, _ := e.Frame.Headers.Get(HeaderMessage)
	if msg != "" {
		return fmt.Sprintf("stomp: server sent ERROR: %s", msg)
	}
	return "stomp: server sent ERROR"
}

// Is reports that StompErrorFrame participates in the ErrProtocol-adjacent
// family for callers that only care "did the handshake fail".
func (e *StompErrorFrame) Is(target error) bool {
	return target == ErrProtocol
}

// timeoutError implements net.Error so callers using this package alongside
// net.Conn-based timeouts can type-switch uniformly. Grounded on
// SagerNet-smux/session.go's timeoutError.
type timeoutError struct{ msg string }

func (e *timeoutError) Error() string   { return e.msg }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// ErrReadTimeout is a net.Error-compatible read timeout value. No function
// in this package returns it: Session's readLoop translates read timeouts
// into pacemaker actions, not into an error.
var ErrReadTimeout error = &timeoutError{msg: "stomp: read timeout"}

// wrapIO wraps a transport I/O failure (spec §7, Io(cause)).
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stomp: io: %w", err)
}

// protocolErrorf builds an ErrProtocol-compatible error with detail, so that
// errors.Is(err, ErrProtocol) succeeds while the message stays specific.
func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
