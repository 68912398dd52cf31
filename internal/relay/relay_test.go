package relay

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/beastconsumer/MicMic/internal/status"
)

// memorySink records every sample written to it.
type memorySink struct {
	mu      sync.Mutex
	samples []int16
	closed  bool
	failOn  error
}

func (s *memorySink) WriteSamples(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return s.failOn
	}
	s.samples = append(s.samples, samples...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.samples))
	copy(out, s.samples)
	return out
}

func newTestRelay(t *testing.T, channels int, sink *memorySink) (*Relay, *status.Bus) {
	t.Helper()
	bus := status.NewBus()
	t.Cleanup(bus.Close)

	r := New(Config{
		Port:        0, // ephemeral; tests read BoundPort
		Channels:    channels,
		OutputLabel: "Test Output",
		OpenSink:    func() (Sink, error) { return sink, nil },
	}, bus)
	t.Cleanup(r.Stop)
	return r, bus
}

func dialRelay(t *testing.T, r *Relay) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", r.BoundPort()))
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartTwiceIsNoOp(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 1, sink)

	if err := r.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	port := r.BoundPort()

	if err := r.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	if r.BoundPort() != port {
		t.Fatalf("second Start rebound the listener: %d -> %d", port, r.BoundPort())
	}
}

func TestStopOnIdleAndStoppedRelay(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 1, sink)

	// Never started.
	r.Stop()
	r.Stop()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
	r.Stop()

	if got := r.State(); got != Stopped {
		t.Fatalf("state = %v, want Stopped", got)
	}
}

func TestPortRebindableAfterStop(t *testing.T) {
	sink := &memorySink{}
	bus := status.NewBus()
	defer bus.Close()

	// Fixed port so the rebind is meaningful.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	r := New(Config{
		Port:     port,
		Channels: 1,
		OpenSink: func() (Sink, error) { return sink, nil },
	}, bus)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()

	ln2, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port not re-bindable after Stop: %v", err)
	}
	ln2.Close()
}

func TestRelayPumpsMonoPayload(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 1, sink)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRelay(t, r)
	defer conn.Close()

	// samples 1, 2, 3 as little-endian int16
	if _, err := conn.Write([]byte{1, 0, 2, 0, 3, 0}); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "samples to reach sink", func() bool {
		return len(sink.snapshot()) == 3
	})

	got := sink.snapshot()
	want := []int16{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sink samples = %v, want %v", got, want)
		}
	}
}

func TestRelayUpmixesToStereo(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 2, sink)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRelay(t, r)
	defer conn.Close()

	if _, err := conn.Write([]byte{1, 0, 2, 0, 3, 0}); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "upmixed samples", func() bool {
		return len(sink.snapshot()) == 6
	})

	got := sink.snapshot()
	want := []int16{1, 1, 2, 2, 3, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sink samples = %v, want %v", got, want)
		}
	}
}

func TestRelayDropsOddTrailingByte(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 1, sink)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRelay(t, r)

	// 5 bytes: 2 complete samples plus a stray byte.
	if _, err := conn.Write([]byte{1, 0, 2, 0, 9}); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "aligned samples", func() bool {
		return len(sink.snapshot()) >= 2
	})
	conn.Close()

	waitFor(t, "worker exit", func() bool {
		return r.State() != Streaming || len(sink.snapshot()) == 2
	})
	if got := sink.snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("sink samples = %v, want [1 2]", got)
	}
}

func TestProducerDisconnectIsOrderly(t *testing.T) {
	sink := &memorySink{}
	bus := status.NewBus()
	defer bus.Close()

	r := New(Config{
		Port:        0,
		Channels:    1,
		OutputLabel: "Test Output",
		OpenSink:    func() (Sink, error) { return sink, nil },
	}, bus)
	defer r.Stop()

	ch, cancel := bus.Subscribe()
	defer cancel()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRelay(t, r)
	conn.Write([]byte{1, 0})
	conn.Close()

	// Expect the disconnect event, not a relay-error event.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Severity == status.Error {
				t.Fatalf("orderly disconnect produced an error event: %+v", ev)
			}
			if ev.Severity == status.Warn {
				return // "connection closed by the phone"
			}
		case <-deadline:
			t.Fatal("no disconnect event observed")
		}
	}
}

func TestSinkFailureIsFatalRelayError(t *testing.T) {
	sink := &memorySink{failOn: fmt.Errorf("device gone")}
	bus := status.NewBus()
	defer bus.Close()

	r := New(Config{
		Port:     0,
		Channels: 1,
		OpenSink: func() (Sink, error) { return sink, nil },
	}, bus)
	defer r.Stop()

	ch, cancel := bus.Subscribe()
	defer cancel()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRelay(t, r)
	defer conn.Close()
	conn.Write([]byte{1, 0})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Severity == status.Error {
				return
			}
		case <-deadline:
			t.Fatal("sink failure did not surface as an error event")
		}
	}
}

func TestSecondProducerIsIgnored(t *testing.T) {
	sink := &memorySink{}
	r, _ := newTestRelay(t, 1, sink)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := dialRelay(t, r)
	defer first.Close()

	waitFor(t, "streaming state", func() bool { return r.State() == Streaming })

	// A second connection attempt must not disturb the active stream: the
	// listener no longer accepts, so the dial either fails or is never
	// serviced.
	second, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", r.BoundPort()))
	if err == nil {
		second.Close()
	}

	if _, err := first.Write([]byte{7, 0}); err != nil {
		t.Fatalf("first producer write: %v", err)
	}
	waitFor(t, "first producer still relayed", func() bool {
		return len(sink.snapshot()) == 1 && sink.snapshot()[0] == 7
	})
}
