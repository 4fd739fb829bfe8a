package stomp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWriterFlowEmitsKeepAliveWhenIdle exercises spec §4.3's writer-flow
// proactive keep-alive: with nothing queued, a negotiated client-to-server
// interval elapsing must produce a bare LF on the wire.
func TestWriterFlowEmitsKeepAliveWhenIdle(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		connectFrame := readServerFrame(t, serverConn)
		require.Equal(t, CommandConnect, connectFrame.Command)

		connected := NewFrame(CommandConnected, nil)
		connected.Headers.Set(HeaderHeartBeat, "20,20")
		writeServerFrame(t, serverConn, connected)
	}()

	_, err := Connect(clientConn, WithHeartBeat(20*time.Millisecond), WithHandshakeTimeout(2*time.Second))
	require.NoError(t, err)

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := serverConn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('\n'), buf[0])
}

// TestPeerFailedTerminatesSessionWhenServerGoesSilent exercises spec §4.2's
// timeout-driven failure path: once 2x the negotiated server-to-client
// interval passes with no inbound byte, the client must fail the
// connection rather than wait forever.
func TestPeerFailedTerminatesSessionWhenServerGoesSilent(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		connectFrame := readServerFrame(t, serverConn)
		require.Equal(t, CommandConnect, connectFrame.Command)

		connected := NewFrame(CommandConnected, nil)
		connected.Headers.Set(HeaderHeartBeat, "20,0")
		writeServerFrame(t, serverConn, connected)
		// Then go silent forever (never reading again, never closing).
	}()

	client, err := Connect(clientConn, WithHeartBeat(20*time.Millisecond), WithHandshakeTimeout(2*time.Second))
	require.NoError(t, err)

	err = client.Wait()
	require.ErrorIs(t, err, ErrPeerFailed)
}
