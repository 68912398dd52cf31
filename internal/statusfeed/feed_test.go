package statusfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beastconsumer/MicMic/internal/diag"
	"github.com/beastconsumer/MicMic/internal/status"
)

func dialFeed(t *testing.T, f *Feed) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", f.Port())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestSubscriberGetsDiagnosticsSnapshotFirst(t *testing.T) {
	bus := status.NewBus()
	monitor := diag.NewMonitor()
	monitor.Update(diag.CheckPhone, diag.StatusOK, "connected: Pixel 8")

	f := New(bus, monitor)
	if err := f.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop(context.Background())

	conn := dialFeed(t, f)

	msg := readMessage(t, conn)
	if msg.Type != "diagnostics" {
		t.Fatalf("first message type = %q, want diagnostics", msg.Type)
	}
	if len(msg.Checks) != 1 || msg.Checks[0].Name != diag.CheckPhone {
		t.Fatalf("checks = %+v", msg.Checks)
	}
}

func TestStatusEventsAreBroadcast(t *testing.T) {
	bus := status.NewBus()
	f := New(bus, diag.NewMonitor())
	if err := f.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop(context.Background())

	conn := dialFeed(t, f)
	readMessage(t, conn) // initial diagnostics snapshot

	bus.Publish(status.OK, "stream started with Pixel_8")

	msg := readMessage(t, conn)
	if msg.Type != "status" {
		t.Fatalf("type = %q, want status", msg.Type)
	}
	if msg.Severity != status.OK || msg.Text != "stream started with Pixel_8" {
		t.Fatalf("msg = %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestStopDisconnectsSubscribers(t *testing.T) {
	bus := status.NewBus()
	f := New(bus, diag.NewMonitor())
	if err := f.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialFeed(t, f)
	readMessage(t, conn)

	f.Stop(context.Background())

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected close after Stop")
	}
}
