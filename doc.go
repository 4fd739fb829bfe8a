// Package stomp implements the core of a STOMP 1.2 client: a frame codec,
// a heartbeat pacemaker, a connection multiplexer running independent
// reader and writer flows over a caller-supplied transport, and a thin
// façade (Connect/Subscribe/Publish/Ack/Disconnect/ConsumeNext) tying them
// together.
//
// Dialing, TLS, URL parsing, and reconnection policy are left to the
// caller; Connect takes any Transport, which a net.Conn already
// satisfies.
package stomp
