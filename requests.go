package stomp

import "strconv"

// clientRequest is the sum type of operations the façade posts to the
// writer flow (spec §4.3). Each variant carries exactly the data needed to
// build its frame; side effects on the routing tables (for Subscribe and
// Disconnect) are applied by the writer flow before the frame is written.
type clientRequest interface {
	isClientRequest()
}

// subscribeRequest asks the writer flow to register id -> messages in the
// subscriptions table and then write a SUBSCRIBE frame. The registration
// happens before the frame hits the wire so a fast server can never
// deliver a MESSAGE the multiplexer has nowhere to route (spec §4.3, §5,
// §8 invariant 4).
type subscribeRequest struct {
	destination  string
	id           string
	ackMode      AckMode
	extraHeaders Headers
	messages     chan<- *Frame
	closed       <-chan struct{}
}

func (*subscribeRequest) isClientRequest() {}

// closedSignal returns the channel the reader flow selects against to
// detect that the caller has dropped its receiving end (spec §3
// Lifecycles). See Subscription.Close in client.go.
func (r *subscribeRequest) closedSignal() <-chan struct{} { return r.closed }

// publishRequest asks the writer flow to write a SEND frame. content-length
// is always added by the writer flow.
type publishRequest struct {
	destination  string
	body         []byte
	extraHeaders Headers
}

func (*publishRequest) isClientRequest() {}

// ackRequest asks the writer flow to write an ACK frame.
type ackRequest struct {
	messageID string
}

func (*ackRequest) isClientRequest() {}

// disconnectRequest asks the writer flow to register id -> done in the
// receipts table and then write a DISCONNECT frame carrying that receipt
// id.
type disconnectRequest struct {
	id   string
	done chan<- struct{}
}

func (*disconnectRequest) isClientRequest() {}

func (r *subscribeRequest) toFrame() *Frame {
	f := NewFrame(CommandSubscribe, nil)
	r.extraHeaders.Each(func(k, v string) { f.Headers.Set(k, v) })
	f.Headers.Set(HeaderDestination, r.destination)
	f.Headers.Set(HeaderID, r.id)
	f.Headers.Set(HeaderAck, r.ackMode.String())
	return f
}

func (r *publishRequest) toFrame() *Frame {
	f := NewFrame(CommandSend, r.body)
	r.extraHeaders.Each(func(k, v string) { f.Headers.Set(k, v) })
	f.Headers.Set(HeaderDestination, r.destination)
	f.Headers.Set(HeaderContentLength, strconv.Itoa(len(r.body)))
	return f
}

func (r *ackRequest) toFrame() *Frame {
	f := NewFrame(CommandAck, nil)
	f.Headers.Set(HeaderID, r.messageID)
	return f
}

func (r *disconnectRequest) toFrame() *Frame {
	f := NewFrame(CommandDisconnect, nil)
	f.Headers.Set(HeaderReceipt, r.id)
	return f
}

