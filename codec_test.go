package stomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripTextBody(t *testing.T) {
	f := NewFrame(CommandSend, []byte("hello world"))
	f.Headers.Set(HeaderDestination, "/queue/a")
	f.Headers.Set(HeaderContentLength, "11")

	enc := Encoder{}
	wire, err := enc.Encode(nil, f)
	require.NoError(t, err)

	dec := Decoder{}
	item, n, err := dec.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	require.NotNil(t, item.Frame)
	assert.Equal(t, CommandSend, item.Frame.Command)
	assert.Equal(t, []byte("hello world"), item.Frame.Body)
	dest, ok := item.Frame.Headers.Get(HeaderDestination)
	require.True(t, ok)
	assert.Equal(t, "/queue/a", dest)
}

func TestEncodeDecodeRoundTripBinaryBodyWithEmbeddedNUL(t *testing.T) {
	body := []byte{0x00, 0x01, 0x02, 0x00, 0xff}
	f := NewFrame(CommandSend, body)
	f.Headers.Set(HeaderDestination, "/queue/bin")
	f.Headers.Set(HeaderContentLength, "5")

	enc := Encoder{}
	wire, err := enc.Encode(nil, f)
	require.NoError(t, err)

	dec := Decoder{}
	item, n, err := dec.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, body, item.Frame.Body)
}

func TestEncodeRejectsEmbeddedNULWithoutContentLength(t *testing.T) {
	f := NewFrame(CommandSend, []byte{0x00})
	_, err := (Encoder{}).Encode(nil, f)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeNULTerminatedBodyStopsAtFirstNUL(t *testing.T) {
	wire := []byte("MESSAGE\ndestination:/queue/a\n\npayload\x00")
	item, n, err := (Decoder{}).Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, []byte("payload"), item.Frame.Body)
}

func TestDecodeHeaderValueAllowsLiteralColon(t *testing.T) {
	wire := []byte("CONNECTED\nsession:session-52e83:1\\c2\nversion:1.2\n\n\x00")
	item, n, err := (Decoder{}).Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	session, ok := item.Frame.Headers.Get(HeaderSession)
	require.True(t, ok)
	assert.Equal(t, "session-52e83:1:2", session)
}

// TestDecodeHeaderNameDoesNotAllowRawColon checks that the first raw ':'
// ends the header name; any later raw ':' belongs to the value.
func TestDecodeHeaderNameDoesNotAllowRawColon(t *testing.T) {
	wire := []byte("SEND\nbad:name:value\n\n\x00")
	item, _, err := (Decoder{}).Decode(wire)
	require.NoError(t, err)
	value, ok := item.Frame.Headers.Get("bad")
	require.True(t, ok)
	assert.Equal(t, "name:value", value)
	_, ok = item.Frame.Headers.Get("bad:name")
	assert.False(t, ok)
}

func TestDecodeNeedsMoreBytesOnPartialFrame(t *testing.T) {
	full := []byte("SEND\ndestination:/queue/a\ncontent-length:5\n\nhello\x00")
	for cut := 0; cut < len(full); cut++ {
		item, n, err := (Decoder{}).Decode(full[:cut])
		require.NoError(t, err, "cut=%d", cut)
		assert.Equal(t, 0, n, "cut=%d", cut)
		assert.Nil(t, item.Frame, "cut=%d", cut)
	}
	item, n, err := (Decoder{}).Decode(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	require.NotNil(t, item.Frame)
}

func TestDecodeKeepAliveBareLF(t *testing.T) {
	item, n, err := (Decoder{}).Decode([]byte("\nSEND\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, item.KeepAlive)
}

func TestDecodeKeepAliveCRLF(t *testing.T) {
	item, n, err := (Decoder{}).Decode([]byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, item.KeepAlive)
}

func TestDecodeLoneCRWaitsForMoreBytes(t *testing.T) {
	item, n, err := (Decoder{}).Decode([]byte("\r"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, item.Frame)
	assert.False(t, item.KeepAlive)
}

func TestDecodeUnknownCommandIsProtocolError(t *testing.T) {
	_, _, err := (Decoder{}).Decode([]byte("NOPE\n\n\x00"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeMissingColonSeparatorIsProtocolError(t *testing.T) {
	_, _, err := (Decoder{}).Decode([]byte("SEND\nbadheader\n\n\x00"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeInvalidEscapeIsProtocolError(t *testing.T) {
	_, _, err := (Decoder{}).Decode([]byte("SEND\nfoo:ba\\zr\n\n\x00"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestEncodeSplitProducesHeaderBlockAndBodySeparately(t *testing.T) {
	f := NewFrame(CommandAck, nil)
	f.Headers.Set(HeaderID, "msg-1")
	headerBlock, body, err := (Encoder{}).EncodeSplit(f)
	require.NoError(t, err)
	assert.Equal(t, []byte("ACK\nid:msg-1\n\n"), headerBlock)
	assert.Equal(t, []byte{0}, body)
}
