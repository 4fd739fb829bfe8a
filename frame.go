package stomp

import "fmt"

// Command is a closed enumeration of STOMP 1.2 frame commands.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandSend        Command = "SEND"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandDisconnect  Command = "DISCONNECT"
	CommandAck         Command = "ACK"

	CommandConnected Command = "CONNECTED"
	CommandMessage   Command = "MESSAGE"
	CommandReceipt   Command = "RECEIPT"
	CommandError     Command = "ERROR"
)

// knownCommands is the closed set of tokens accepted on the wire.
var knownCommands = map[Command]struct{}{
	CommandConnect:     {},
	CommandSend:        {},
	CommandSubscribe:   {},
	CommandUnsubscribe: {},
	CommandDisconnect:  {},
	CommandAck:         {},
	CommandConnected:   {},
	CommandMessage:     {},
	CommandReceipt:     {},
	CommandError:       {},
}

// ParseCommand validates a raw command token against the closed set of
// STOMP 1.2 commands. An unknown token is a protocol error (spec §4.1).
func ParseCommand(token string) (Command, error) {
	c := Command(token)
	if _, ok := knownCommands[c]; !ok {
		return "", fmt.Errorf("%w: unknown command %q", ErrProtocol, token)
	}
	return c, nil
}

// Common header names used throughout the codec and multiplexer.
const (
	HeaderAcceptVersion  = "accept-version"
	HeaderHeartBeat      = "heart-beat"
	HeaderLogin          = "login"
	HeaderPasscode       = "passcode"
	HeaderHost           = "host"
	HeaderContentLength  = "content-length"
	HeaderDestination    = "destination"
	HeaderID             = "id"
	HeaderAck            = "ack"
	HeaderSubscription   = "subscription"
	HeaderMessageID      = "message-id"
	HeaderReceipt        = "receipt"
	HeaderReceiptID      = "receipt-id"
	HeaderSession        = "session"
	HeaderServer         = "server"
	HeaderVersion        = "version"
	HeaderMessage        = "message"
	HeaderTransaction    = "transaction"
	HeaderContentType    = "content-type"
	HeaderSupportedValue = "1.2"
)

// Headers is an ordered-on-the-wire, single-valued-in-memory mapping from
// header name to header value. Per spec §3, when multiple entries share a
// key on the wire, only the first-seen value is significant; this in-memory
// representation stores one value per key, and because Set overwrites, the
// Decoder keeps the last value it saw for a duplicated key.
type Headers struct {
	keys   []string
	values map[string]string
}

// NewHeaders returns an empty header set.
func NewHeaders() Headers {
	return Headers{values: make(map[string]string)}
}

// Set inserts or overwrites a header. The first call for a given key fixes
// its position in iteration order; a later call with the same key updates
// the value in place without moving it.
func (h *Headers) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value for key and whether it was present.
func (h Headers) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def if absent.
func (h Headers) GetDefault(key, def string) string {
	if v, ok := h.values[key]; ok {
		return v
	}
	return def
}

// Len reports the number of distinct headers.
func (h Headers) Len() int {
	return len(h.keys)
}

// Each calls fn once per header in first-insertion order.
func (h Headers) Each(fn func(key, value string)) {
	for _, k := range h.keys {
		fn(k, h.values[k])
	}
}

// Clone returns an independent copy of h.
func (h Headers) Clone() Headers {
	out := NewHeaders()
	h.Each(func(k, v string) { out.Set(k, v) })
	return out
}

// Frame is a single STOMP protocol message: a command, an ordered header
// set, and a body (spec §3).
type Frame struct {
	Command Command
	Headers Headers
	Body    []byte
}

// NewFrame builds a frame with an empty header set.
func NewFrame(command Command, body []byte) *Frame {
	return &Frame{Command: command, Headers: NewHeaders(), Body: body}
}

// FrameOrKeepAlive is the tagged union the codec produces: either a decoded
// Frame, or a bare keep-alive newline (spec §3).
type FrameOrKeepAlive struct {
	Frame     *Frame // nil when KeepAlive is true
	KeepAlive bool
}

// AckMode enumerates the SUBSCRIBE ack modes this client supports.
// NACK-driven "client" mode is out of scope (spec §1 Non-goals).
type AckMode string

const (
	AckAuto             AckMode = "auto"
	AckClientIndividual AckMode = "client-individual"
)

// String returns the exact lowercase wire representation.
func (m AckMode) String() string {
	return string(m)
}
