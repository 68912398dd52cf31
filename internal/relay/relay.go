// Package relay accepts a single inbound audio producer over loopback TCP
// and pumps its raw PCM payload into a live output device until stopped or
// the producer disconnects.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/beastconsumer/MicMic/internal/logging"
	"github.com/beastconsumer/MicMic/internal/status"
)

var log = logging.L("relay")

// State of the relay worker.
type State int32

const (
	Idle State = iota
	Listening
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

const (
	// pollInterval bounds accept and read waits so the stop signal is
	// observed promptly.
	pollInterval = time.Second

	// chunkSize is the socket read size in bytes.
	chunkSize = 4096

	// stopJoinTimeout bounds the wait for the worker to exit in Stop.
	stopJoinTimeout = 3 * time.Second
)

// ErrBindFailed wraps a failure to bind the listening socket.
var ErrBindFailed = errors.New("relay listener bind failed")

// Sink is a live output audio stream taking interleaved 16-bit samples.
type Sink interface {
	WriteSamples(samples []int16) error
	Close() error
}

// SinkOpener opens the output device once a producer has connected. It
// closes over the resolved device and audio format.
type SinkOpener func() (Sink, error)

// Config describes one relay session.
type Config struct {
	Port        int    // loopback TCP port to listen on; 0 picks one (tests)
	Channels    int    // sink channel count; payload is always mono
	OutputLabel string // display name for status events
	OpenSink    SinkOpener
}

// Relay owns one listening socket and one output stream. Start and Stop are
// idempotent; no resource outlives Stop.
type Relay struct {
	cfg       Config
	bus       *status.Bus
	sessionID string
	log       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	stopCh   chan struct{}
	doneCh   chan struct{}
	state    atomic.Int32
}

// New builds a relay for one session.
func New(cfg Config, bus *status.Bus) *Relay {
	if cfg.Channels < 1 {
		cfg.Channels = 1
	}
	sessionID := uuid.NewString()
	return &Relay{
		cfg:       cfg,
		bus:       bus,
		sessionID: sessionID,
		log:       logging.WithSession(log, sessionID),
	}
}

// SessionID identifies this relay instance in logs and status output.
func (r *Relay) SessionID() string {
	return r.sessionID
}

// State returns the current worker state.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// BoundPort returns the port the listener is bound to, or 0 when idle.
func (r *Relay) BoundPort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return 0
	}
	return r.listener.Addr().(*net.TCPAddr).Port
}

// Start binds the loopback listener and launches the worker. A no-op when a
// worker is already active. The bind happens synchronously so callers see
// bind failures immediately.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doneCh != nil {
		select {
		case <-r.doneCh:
			// previous worker finished; fall through and restart
		default:
			return nil
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", r.cfg.Port))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	r.listener = ln
	r.conn = nil
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.state.Store(int32(Listening))

	go r.run(ln, r.stopCh, r.doneCh)
	return nil
}

// Stop signals the worker, forcibly unblocks any socket wait, and joins the
// worker with a bounded wait. Idempotent and safe on a never-started relay;
// after it returns the listening port is re-bindable.
func (r *Relay) Stop() {
	r.mu.Lock()
	if r.doneCh == nil {
		r.mu.Unlock()
		return
	}

	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}

	// Close both sockets to unblock accept/read immediately.
	if r.listener != nil {
		r.listener.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
	done := r.doneCh
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		r.log.Warn("relay worker did not exit within join timeout")
	}

	r.mu.Lock()
	r.listener = nil
	r.conn = nil
	r.mu.Unlock()
	r.state.Store(int32(Stopped))
}

func (r *Relay) publish(sev status.Severity, message string) {
	if r.bus != nil {
		r.bus.Publish(sev, message)
	}
}

func (r *Relay) stopping(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// run is the worker: accept exactly one producer, then drain it into the
// sink until stop or disconnect.
func (r *Relay) run(ln net.Listener, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer ln.Close()
	defer r.state.Store(int32(Stopped))

	conn := r.acceptOne(ln, stopCh)
	if conn == nil {
		return
	}
	defer conn.Close()

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	sink, err := r.cfg.OpenSink()
	if err != nil {
		r.log.Error("failed to open output stream", logging.KeyError, err, logging.KeyDevice, r.cfg.OutputLabel)
		r.publish(status.Error, fmt.Sprintf("audio relay error: %v", err))
		return
	}
	defer sink.Close()

	r.state.Store(int32(Streaming))
	r.log.Info("stream active", logging.KeyDevice, r.cfg.OutputLabel)
	r.publish(status.OK, fmt.Sprintf("stream active on: %s", r.cfg.OutputLabel))

	r.pump(conn, sink, stopCh)
}

// acceptOne waits for the first producer, polling so the stop signal is
// observed within pollInterval. Returns nil when stopped first.
func (r *Relay) acceptOne(ln net.Listener, stopCh chan struct{}) net.Conn {
	r.publish(status.Info, "waiting for phone audio...")
	r.log.Info("listening for producer", "addr", ln.Addr().String())

	tcpLn := ln.(*net.TCPListener)
	for {
		if r.stopping(stopCh) {
			return nil
		}

		tcpLn.SetDeadline(time.Now().Add(pollInterval))
		conn, err := tcpLn.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if r.stopping(stopCh) {
				return nil
			}
			r.log.Error("accept failed", logging.KeyError, err)
			r.publish(status.Error, fmt.Sprintf("audio relay error: %v", err))
			return nil
		}

		r.publish(status.Info, fmt.Sprintf("phone connected (%s)", conn.RemoteAddr()))
		r.log.Info("producer connected", "remote", conn.RemoteAddr().String())
		return conn
	}
}

// pump drains the producer into the sink. A zero-length read is an orderly
// disconnect, not an error.
func (r *Relay) pump(conn net.Conn, sink Sink, stopCh chan struct{}) {
	buf := make([]byte, chunkSize)

	for {
		if r.stopping(stopCh) {
			return
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := conn.Read(buf)

		if n > 0 {
			samples := DecodeSamples(buf[:n])
			if len(samples) > 0 {
				samples = UpmixMono(samples, r.cfg.Channels)
				if werr := sink.WriteSamples(samples); werr != nil {
					r.log.Error("sink write failed", logging.KeyError, werr)
					r.publish(status.Error, fmt.Sprintf("audio relay error: %v", werr))
					return
				}
			}
		}

		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if r.stopping(stopCh) {
				return
			}
			// EOF and peer resets both mean the producer went away.
			r.log.Info("producer disconnected", "reason", err.Error())
			r.publish(status.Warn, "audio connection closed by the phone")
			return
		}
	}
}
