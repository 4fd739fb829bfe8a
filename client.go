package stomp

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wirebound/stomp/internal/idgen"
)

// Client is the thin façade (C4) applications use: Connect performs the
// handshake and starts the multiplexer; Subscribe, Publish, Ack, and
// Disconnect post a request to its writer flow. Only Disconnect waits for
// a reply from the server (its RECEIPT); the others return once the writer
// flow has accepted the request (spec §4.4).
type Client struct {
	session  *Session
	requests chan clientRequest
	opts     Options

	closeOnce sync.Once
}

// Connect performs the STOMP 1.2 handshake over conn (dialing, TLS, and URL
// parsing are the caller's responsibility, spec §1 Non-goals) and, on
// success, starts the connection multiplexer. The returned Client is ready
// for Subscribe/Publish/Ack/Disconnect calls.
func Connect(conn Transport, opts ...Option) (*Client, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}

	if err := sendConnect(conn, o); err != nil {
		return nil, err
	}

	frame, err := readHandshakeFrame(conn, o.HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	switch frame.Command {
	case CommandConnected:
	case CommandError:
		return nil, &StompErrorFrame{Frame: frame}
	default:
		return nil, protocolErrorf("expected CONNECTED, got %s", frame.Command)
	}

	var sx, sy time.Duration
	if hb, ok := frame.Headers.Get(HeaderHeartBeat); ok {
		sx, sy, err = parseHeartBeat(hb)
		if err != nil {
			return nil, err
		}
	}
	s2c, c2s := NegotiateHeartbeat(o.HeartBeat, sx, sy)
	pacer := NewPacemaker(s2c, c2s, time.Now())

	requests := make(chan clientRequest)
	session := newSession(conn, requests, pacer, o.Logger)

	return &Client{session: session, requests: requests, opts: o}, nil
}

func sendConnect(conn Transport, o Options) error {
	f := NewFrame(CommandConnect, nil)
	o.ExtraConnectHeaders.Each(func(k, v string) { f.Headers.Set(k, v) })
	f.Headers.Set(HeaderAcceptVersion, HeaderSupportedValue)
	if o.Host != "" {
		f.Headers.Set(HeaderHost, o.Host)
	}
	if o.Login != "" {
		f.Headers.Set(HeaderLogin, o.Login)
	}
	if o.Passcode != "" {
		f.Headers.Set(HeaderPasscode, o.Passcode)
	}
	if o.HeartBeat != nil {
		ms := strconv.FormatInt(int64(*o.HeartBeat/time.Millisecond), 10)
		f.Headers.Set(HeaderHeartBeat, ms+","+ms)
	}

	enc := Encoder{}
	buf, err := enc.Encode(nil, f)
	if err != nil {
		return err
	}
	if o.HandshakeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(o.HandshakeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(buf); err != nil {
		return wrapIO(err)
	}
	return nil
}

// readHandshakeFrame blocks until CONNECTED, ERROR, or a read failure
// arrives. A leading keep-alive before any frame is a protocol error (spec
// §4.4).
func readHandshakeFrame(conn Transport, timeout time.Duration) (*Frame, error) {
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	dec := Decoder{}
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		item, n, err := dec.Decode(buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			if item.KeepAlive {
				return nil, protocolErrorf("leading keep-alive before CONNECTED")
			}
			return item.Frame, nil
		}
		nr, err := conn.Read(chunk)
		if err != nil {
			return nil, wrapIO(err)
		}
		buf = append(buf, chunk[:nr]...)
	}
}

// parseHeartBeat parses a "heart-beat: SX,SY" header value into the two
// proposed intervals (spec §4.2). Values are milliseconds per STOMP 1.2.
func parseHeartBeat(raw string) (sx, sy time.Duration, err error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, protocolErrorf("malformed heart-beat header %q", raw)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0, protocolErrorf("malformed heart-beat header %q", raw)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// submit hands req to the writer flow, failing fast if the multiplexer has
// already torn down (spec §5 "Cancellation").
func (c *Client) submit(req clientRequest) error {
	select {
	case c.requests <- req:
		return nil
	case <-c.session.done:
		if c.session.err != nil {
			return c.session.err
		}
		return ErrConnectionClosed
	}
}

// Subscribe registers interest in destination under the caller-chosen id
// and returns a Subscription whose ConsumeNext delivers MESSAGE frames
// routed to it. id must be unique among this connection's open
// subscriptions (spec §3 "Subscription handle"); reusing the same id
// across a reconnect is how a broker recognizes a previously established
// subscription. extraHeaders is written into the SUBSCRIBE frame first,
// followed by the standard destination/id/ack headers, which replace an
// extra header of the same name; pass NewHeaders() for none (spec §4.4).
func (c *Client) Subscribe(destination, id string, ackMode AckMode, extraHeaders Headers) (*Subscription, error) {
	messages := make(chan *Frame, c.opts.SubscriptionBuffer)
	closed := make(chan struct{})

	req := &subscribeRequest{
		destination:  destination,
		id:           id,
		ackMode:      ackMode,
		extraHeaders: extraHeaders,
		messages:     messages,
		closed:       closed,
	}
	if err := c.submit(req); err != nil {
		return nil, err
	}

	return &Subscription{
		ID:          id,
		Destination: destination,
		client:      c,
		messages:    messages,
		closed:      closed,
	}, nil
}

// Publish sends body to destination as a SEND frame, always carrying a
// content-length header. extraHeaders is written into the SEND frame
// first, followed by the standard destination/content-length headers,
// which replace an extra header of the same name; pass NewHeaders() for
// none (spec §4.4).
func (c *Client) Publish(destination string, body []byte, extraHeaders Headers) error {
	return c.submit(&publishRequest{destination: destination, body: body, extraHeaders: extraHeaders})
}

// Ack acknowledges msg, a previously delivered MESSAGE frame (spec §4.4).
// It returns ErrNoAckHeader if msg carries no ack header, which happens
// when the owning subscription used AckAuto (spec §7).
func (c *Client) Ack(msg *Frame) error {
	ackID, ok := msg.Headers.Get(HeaderAck)
	if !ok {
		return ErrNoAckHeader
	}
	return c.submit(&ackRequest{messageID: ackID})
}

// Disconnect sends a DISCONNECT frame carrying a fresh receipt id and waits
// for the matching RECEIPT before returning, or until ctx is done (spec
// §4.4, §9 "graceful termination sequence"). Either way, Disconnect then
// drops the request handle by closing it (spec §4.4 "disconnect() ...
// and then drops the request-handle"), which lets the writer flow see
// end-of-input and terminate cleanly (spec §4.3, §5 "Cancellation").
func (c *Client) Disconnect(ctx context.Context) error {
	defer c.Close()

	id := idgen.New()
	done := make(chan struct{})
	if err := c.submit(&disconnectRequest{id: id, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.session.done:
		if c.session.err != nil {
			return c.session.err
		}
		return nil
	}
}

// Close drops the client's request handle by closing the queue the writer
// flow reads from. The writer flow observes end-of-input and terminates
// cleanly once it has drained whatever was already queued (spec §4.3
// "request queue becoming permanently empty", §5 "Cancellation"). Safe to
// call more than once, and safe to call after Disconnect (which already
// calls it).
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.requests) })
}

// Wait blocks until the underlying connection multiplexer terminates and
// returns its terminal error, or nil for a clean shutdown.
func (c *Client) Wait() error {
	return c.session.Wait()
}

// Subscription is a handle returned by Client.Subscribe. ConsumeNext
// delivers routed MESSAGE frames one at a time; Close releases the
// subscription's routing-table entry without sending UNSUBSCRIBE (spec
// §4.4 names no unsubscribe operation — only the in-process routing
// registration is torn down).
type Subscription struct {
	ID          string
	Destination string

	client    *Client
	messages  <-chan *Frame
	closed    chan struct{}
	closeOnce sync.Once
}

// ConsumeNext blocks until a MESSAGE is routed to this subscription, ctx is
// done, or the connection terminates (spec §4.4 "consume_next").
func (sub *Subscription) ConsumeNext(ctx context.Context) (*Frame, error) {
	select {
	case f := <-sub.messages:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sub.client.session.done:
		if sub.client.session.err != nil {
			return nil, sub.client.session.err
		}
		return nil, ErrConnectionClosed
	}
}

// Close marks the subscription's receiving end as gone. Any MESSAGE the
// reader flow subsequently looks up for this id is logged and dropped
// instead of blocking forever (spec §3 Lifecycles).
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		close(sub.closed)
		sub.client.session.removeSubscription(sub.ID)
	})
}
