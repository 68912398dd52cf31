// Package statusfeed serves a loopback WebSocket feed of status events and
// diagnostics so local frontends can mirror the session state live.
package statusfeed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beastconsumer/MicMic/internal/diag"
	"github.com/beastconsumer/MicMic/internal/logging"
	"github.com/beastconsumer/MicMic/internal/status"
)

var log = logging.L("statusfeed")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Message is the wire envelope pushed to feed subscribers.
type Message struct {
	Type      string          `json:"type"`
	Severity  status.Severity `json:"severity,omitempty"`
	Text      string          `json:"text,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Checks    []diag.Check    `json:"checks,omitempty"`
	Overall   diag.Status     `json:"overall,omitempty"`
}

// Feed broadcasts the status bus over a loopback-only WebSocket endpoint.
type Feed struct {
	bus     *status.Bus
	monitor *diag.Monitor

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
	done    chan struct{}
	once    sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func New(bus *status.Bus, monitor *diag.Monitor) *Feed {
	return &Feed{
		bus:     bus,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Loopback-only endpoint; browser origin checks add nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
}

// Start binds 127.0.0.1:port and begins serving. Port 0 picks a free port;
// Port() reports the bound one.
func (f *Feed) Start(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	f.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWS)
	f.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	events, cancel := f.bus.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-f.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				f.broadcast(Message{
					Type:      "status",
					Severity:  ev.Severity,
					Text:      ev.Message,
					Timestamp: ev.Timestamp,
				})
			}
		}
	}()

	go func() {
		if err := f.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("serve failed", logging.KeyError, err)
		}
	}()

	log.Info("status feed listening", "addr", ln.Addr().String())
	return nil
}

// Port returns the bound TCP port, or 0 before Start.
func (f *Feed) Port() int {
	if f.listener == nil {
		return 0
	}
	return f.listener.Addr().(*net.TCPAddr).Port
}

// Stop disconnects all subscribers and shuts the server down.
func (f *Feed) Stop(ctx context.Context) {
	f.once.Do(func() {
		close(f.done)

		f.mu.Lock()
		for c := range f.clients {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
		}
		f.clients = make(map[*client]struct{})
		f.mu.Unlock()

		if f.server != nil {
			f.server.Shutdown(ctx)
		}
		log.Info("status feed stopped")
	})
}

// PushDiagnostics broadcasts the current diagnostics snapshot.
func (f *Feed) PushDiagnostics() {
	f.broadcast(diagnosticsMessage(f.monitor))
}

func diagnosticsMessage(m *diag.Monitor) Message {
	return Message{
		Type:    "diagnostics",
		Checks:  m.All(),
		Overall: m.Overall(),
	}
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", logging.KeyError, err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	// New subscribers get the diagnostics snapshot before any live events.
	if data, err := json.Marshal(diagnosticsMessage(f.monitor)); err == nil {
		c.send <- data
	}

	go f.writePump(c)
	go f.readPump(c)

	log.Info("subscriber connected", "remote", conn.RemoteAddr().String())
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	c.conn.Close()
}

func (f *Feed) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn("marshal failed", logging.KeyError, err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			// Slow subscriber; drop the message rather than stall the feed.
			log.Warn("subscriber lagging, message dropped")
		}
	}
}

// readPump consumes inbound frames so control messages are processed. The
// feed is one-way; any payload from the subscriber is ignored.
func (f *Feed) readPump(c *client) {
	defer f.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", logging.KeyError, err)
			}
			return
		}
	}
}

func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-f.done:
			return

		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("write error", logging.KeyError, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
