package stomp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	singbufio "github.com/sagernet/sing/common/bufio"
)

// Transport is the duplex byte stream the core consumes (spec §6). It is
// injected by an external collaborator (URL parsing, dialing, and TLS are
// explicitly out of scope, spec §1). net.Conn satisfies this interface.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// subscriptionEntry is what the routing table stores per subscription id:
// the sender half of the caller's channel, plus a signal the caller closes
// to mean "I have dropped my receiving end" (spec §3 Lifecycles). Grounded
// on the zJUNAIDz-vibe-learning-dump pub/sub example's per-subscriber
// cancellation signal, adapted from context.CancelFunc to a plain closed
// channel since nothing here needs a context.Context's value-propagation.
type subscriptionEntry struct {
	messages chan<- *Frame
	closed   <-chan struct{}
}

// Session is the connection multiplexer (C3): it owns the transport and
// runs independent reader and writer flows that share one mutex-guarded
// routing table.
//
// Grounded on SagerNet-smux/session.go's Session: streams map + streamLock
// becomes subscriptions/receipts maps + one mu; s.writes request channel
// plus writeRequest/writeResult becomes the requests channel of
// clientRequest values; recvLoop/sendLoop become readLoop/writeLoop.
type Session struct {
	conn  Transport
	pacer *Pacemaker
	log   *slog.Logger

	requests chan clientRequest

	mu            sync.Mutex
	subscriptions map[string]subscriptionEntry
	receipts      map[string]chan<- struct{}

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

func newSession(conn Transport, requests chan clientRequest, pacer *Pacemaker, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		conn:          conn,
		pacer:         pacer,
		log:           log,
		requests:      requests,
		subscriptions: make(map[string]subscriptionEntry),
		receipts:      make(map[string]chan<- struct{}),
		done:          make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// Wait blocks until either flow terminates and returns the first terminal
// result (nil for a clean shutdown, spec §4.3 "Termination").
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// finish records the first terminal result, closes the transport (which
// cancels whichever flow is still running), and drops every pending
// receipt waiter without signalling it, so a caller waiting on one sees
// the failure through done instead of a receipt (spec §4.3, §5
// "Cancellation").
func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		s.conn.Close()
		s.mu.Lock()
		for id := range s.receipts {
			delete(s.receipts, id)
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) registerSubscription(id string, entry subscriptionEntry) {
	s.mu.Lock()
	s.subscriptions[id] = entry
	s.mu.Unlock()
}

func (s *Session) registerReceipt(id string, waiter chan<- struct{}) {
	s.mu.Lock()
	s.receipts[id] = waiter
	s.mu.Unlock()
}

// removeSubscription drops the routing entry for id. Safe to call more than
// once; used both by the reader flow (on detecting a closed receiver) and
// directly by a caller's Subscription.Close().
func (s *Session) removeSubscription(id string) {
	s.mu.Lock()
	delete(s.subscriptions, id)
	s.mu.Unlock()
}

// writeLoop drains client requests and writes the corresponding frames,
// proactively emitting a keep-alive when the pacemaker's write interval
// elapses with nothing queued (spec §4.3 "Writer flow").
func (s *Session) writeLoop() {
	enc := Encoder{}

	// support for scatter-gather I/O, mirroring SagerNet-smux/session.go's
	// sendLoop: a header block and a body+NUL are handed to the transport
	// as two buffers instead of being copied into one.
	bw, hasVec := singbufio.CreateVectorisedWriter(s.conn)
	vec := make([][]byte, 2)
	writeFrame := func(f *Frame) error {
		headerBlock, body, err := enc.EncodeSplit(f)
		if err != nil {
			return err
		}
		if hasVec {
			vec[0], vec[1] = headerBlock, body
			_, err := singbufio.WriteVectorised(bw, vec)
			return wrapIO(err)
		}
		buf := append(append([]byte(nil), headerBlock...), body...)
		_, err = s.conn.Write(buf)
		return wrapIO(err)
	}

	for {
		var timer *time.Timer
		var timeoutC <-chan time.Time
		if d, ok := s.pacer.UntilWrite(time.Now()); ok {
			timer = time.NewTimer(d)
			timeoutC = timer.C
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case req, ok := <-s.requests:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				// The client handle was dropped; clean termination (spec
				// §4.3 "request queue becoming permanently empty").
				s.finish(nil)
				return
			}
			if err := s.handleRequest(req, writeFrame); err != nil {
				s.finish(err)
				return
			}

		case <-timeoutC:
			if err := s.writeKeepAlive(); err != nil {
				s.finish(wrapIO(err))
				return
			}
			s.pacer.ObserveWrite(time.Now())
		}
	}
}

func (s *Session) handleRequest(req clientRequest, writeFrame func(*Frame) error) error {
	var frame *Frame
	switch r := req.(type) {
	case *subscribeRequest:
		// Insert before writing: no MESSAGE for this id can be lost to
		// routing-table timing (spec §4.3, §5, §8 invariant 4).
		s.registerSubscription(r.id, subscriptionEntry{messages: r.messages, closed: r.closedSignal()})
		frame = r.toFrame()
	case *publishRequest:
		frame = r.toFrame()
	case *ackRequest:
		frame = r.toFrame()
	case *disconnectRequest:
		s.registerReceipt(r.id, r.done)
		frame = r.toFrame()
	default:
		return fmt.Errorf("stomp: unsupported request type %T", req)
	}

	if err := writeFrame(frame); err != nil {
		return err
	}
	s.pacer.ObserveWrite(time.Now())
	return nil
}

func (s *Session) writeKeepAlive() error {
	_, err := s.conn.Write([]byte{'\n'})
	return err
}

// readLoop decodes incoming frames and dispatches them to subscriptions or
// receipt waiters (spec §4.3 "Reader flow").
func (s *Session) readLoop() {
	dec := Decoder{}
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		for {
			item, n, err := dec.Decode(buf)
			if err != nil {
				s.finish(err)
				return
			}
			if n == 0 {
				break
			}
			buf = buf[n:]
			s.pacer.ObserveRead(time.Now())
			if item.KeepAlive {
				continue
			}
			if err := s.dispatch(item.Frame); err != nil {
				s.finish(err)
				return
			}
		}

		if d, ok := s.pacer.UntilRead(time.Now()); ok {
			s.conn.SetReadDeadline(time.Now().Add(d))
		} else {
			s.conn.SetReadDeadline(time.Time{})
		}

		n, err := s.conn.Read(chunk)
		if err != nil {
			if isTimeout(err) {
				if s.pacer.NextAction(time.Now()) == ActionPeerFailed {
					s.finish(ErrPeerFailed)
					return
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				s.finish(wrapIO(err))
				return
			}
			s.finish(wrapIO(err))
			return
		}
		buf = append(buf, chunk[:n]...)
	}
}

func (s *Session) dispatch(f *Frame) error {
	switch f.Command {
	case CommandMessage:
		subID, ok := f.Headers.Get(HeaderSubscription)
		if !ok {
			return protocolErrorf("MESSAGE frame missing subscription header")
		}
		s.mu.Lock()
		entry, found := s.subscriptions[subID]
		s.mu.Unlock()
		if !found {
			s.log.Debug("dropping MESSAGE for unknown subscription", "subscription", subID)
			return nil
		}
		select {
		case entry.messages <- f:
		case <-entry.closed:
			s.log.Debug("subscriber closed, dropping MESSAGE and removing route", "subscription", subID)
			s.removeSubscription(subID)
		}
		return nil

	case CommandReceipt:
		receiptID, ok := f.Headers.Get(HeaderReceiptID)
		if !ok {
			return protocolErrorf("RECEIPT frame missing receipt-id header")
		}
		s.mu.Lock()
		waiter, found := s.receipts[receiptID]
		if found {
			delete(s.receipts, receiptID)
		}
		s.mu.Unlock()
		if found {
			close(waiter)
		}
		return nil

	case CommandError:
		s.log.Warn("server sent ERROR", "message", f.Headers.GetDefault(HeaderMessage, ""))
		return nil

	default:
		s.log.Debug("dropping unexpected server frame", "command", f.Command)
		return nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
