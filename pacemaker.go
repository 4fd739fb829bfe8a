package stomp

import "time"

// Action is the decision a Pacemaker returns when a read wait's deadline
// elapses (spec §4.2).
type Action int

const (
	// ActionRetry means neither direction's deadline has truly elapsed yet
	// (the caller woke early, e.g. to re-evaluate after clock skew); keep
	// waiting.
	ActionRetry Action = iota
	// ActionSendClientHeart means the caller must write a single keep-alive
	// LF and record a write observation.
	ActionSendClientHeart
	// ActionPeerFailed means no inbound activity has been observed for
	// 2x the negotiated server-to-client interval; the caller must fail
	// the connection.
	ActionPeerFailed
)

// Pacemaker negotiates STOMP heartbeat intervals and tracks the two
// liveness clocks needed to decide when to emit a keep-alive or declare
// the peer dead (spec §4.2).
//
// Grounded on SagerNet-smux/session.go's keepalive() goroutine (a ping
// ticker plus a timeout ticker around a single dataReady flag), adapted
// into a pure decision type because the spec's reader and writer flows
// must each consult the same negotiated state independently rather than
// have one private goroutine own it.
type Pacemaker struct {
	// ServerToClient is the negotiated inbound interval, or nil if
	// disabled.
	ServerToClient *time.Duration
	// ClientToServer is the negotiated outbound interval, or nil if
	// disabled.
	ClientToServer *time.Duration

	lastRead  time.Time
	lastWrite time.Time
}

// NegotiateHeartbeat applies spec §4.2's negotiation rule.
//
//	server_to_client = max(proposed, sx) if both sides want it, else none
//	client_to_server = max(proposed, sy) if both sides want it, else none
//
// If proposed is nil, both directions are disabled regardless of sx/sy —
// note this intentionally diverges from the Rust original's
// cmp::max(Option<Duration>,...) (which treats an absent proposal as the
// weaker operand, not as "disabled"); see DESIGN.md.
func NegotiateHeartbeat(proposed *time.Duration, sx, sy time.Duration) (serverToClient, clientToServer *time.Duration) {
	if proposed == nil {
		return nil, nil
	}
	if sx > 0 {
		v := maxDuration(*proposed, sx)
		serverToClient = &v
	}
	if sy > 0 {
		v := maxDuration(*proposed, sy)
		clientToServer = &v
	}
	return serverToClient, clientToServer
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// NewPacemaker builds a Pacemaker with both observation clocks initialized
// to connectedAt (the moment of the successful CONNECTED handshake, spec
// §4.2 "Observation").
func NewPacemaker(serverToClient, clientToServer *time.Duration, connectedAt time.Time) *Pacemaker {
	return &Pacemaker{
		ServerToClient: serverToClient,
		ClientToServer: clientToServer,
		lastRead:       connectedAt,
		lastWrite:      connectedAt,
	}
}

// ObserveRead records a successful read at now.
func (p *Pacemaker) ObserveRead(now time.Time) { p.lastRead = now }

// ObserveWrite records a successful write at now.
func (p *Pacemaker) ObserveWrite(now time.Time) { p.lastWrite = now }

// saturatingSub returns the already-computed difference d, or 0 if d is
// negative (a backwards-moving clock is treated as "no time elapsed", spec
// §3).
func saturatingSub(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

const minTimeout = time.Millisecond

// UntilTimeout computes, as of now, the minimum soft deadline across the
// two present directions (spec §4.2). A direction that is disabled does
// not contribute. If both are disabled, the returned bool is false and the
// caller should block indefinitely. A deadline already in the past
// saturates to a small epsilon so the caller wakes immediately.
func (p *Pacemaker) UntilTimeout(now time.Time) (time.Duration, bool) {
	var best time.Duration
	have := false

	if p.ServerToClient != nil {
		untilRead := saturatingSub(p.lastRead.Add(*p.ServerToClient).Sub(now)) * 2
		if untilRead <= 0 {
			untilRead = minTimeout
		}
		best, have = untilRead, true
	}
	if p.ClientToServer != nil {
		untilWrite := saturatingSub(p.lastWrite.Add(*p.ClientToServer).Sub(now)) / 2
		if untilWrite <= 0 {
			untilWrite = minTimeout
		}
		if !have || untilWrite < best {
			best = untilWrite
		}
		have = true
	}
	return best, have
}

// UntilWrite reports how long the writer flow should wait, from now,
// before it must proactively emit a keep-alive (spec §4.3's "deadline
// equal to the pacemaker's write interval"). ok is false if c2s is
// disabled, meaning the writer should wait on its request queue
// indefinitely.
func (p *Pacemaker) UntilWrite(now time.Time) (d time.Duration, ok bool) {
	if p.ClientToServer == nil {
		return 0, false
	}
	remaining := saturatingSub(*p.ClientToServer - now.Sub(p.lastWrite))
	if remaining <= 0 {
		remaining = minTimeout
	}
	return remaining, true
}

// UntilRead reports how long the reader flow should wait, from now,
// before it must declare the peer failed (spec §4.3's "2 x s2c as an
// inactivity deadline"). ok is false if s2c is disabled, meaning the
// reader should block on the transport indefinitely.
func (p *Pacemaker) UntilRead(now time.Time) (d time.Duration, ok bool) {
	if p.ServerToClient == nil {
		return 0, false
	}
	window := 2 * (*p.ServerToClient)
	remaining := saturatingSub(window - now.Sub(p.lastRead))
	if remaining <= 0 {
		remaining = minTimeout
	}
	return remaining, true
}

// NextAction decides what the caller should do after a read wait's
// deadline elapsed, as of now. Outbound is checked before inbound (spec
// §4.2: "sending a heartbeat is cheaper than declaring failure").
func (p *Pacemaker) NextAction(now time.Time) Action {
	if p.ClientToServer != nil && now.Sub(p.lastWrite) >= *p.ClientToServer {
		return ActionSendClientHeart
	}
	if p.ServerToClient != nil && now.Sub(p.lastRead) >= 2*(*p.ServerToClient) {
		return ActionPeerFailed
	}
	return ActionRetry
}
