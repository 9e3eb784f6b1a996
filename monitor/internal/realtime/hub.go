// Package realtime exposes the broadcaster to browsers over WebSocket.
//
// Each connection joins the broadcaster as a subscriber and receives
// JSON frames of the form {"event": name, "args": [...]}. Clients may
// send {"invoke": "KillProcess", "args": [pid]}; the outcome arrives as a
// ProcessKilled event.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/broadcast"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
)

// InvokeKillProcess is the only client invocation understood by the hub.
const InvokeKillProcess = "KillProcess"

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	maxFrameSize        = 64 * 1024
)

// Membership is the broadcaster side of a connection.
type Membership interface {
	Join(s broadcast.Subscriber)
	Leave(id string)
}

// ProcessKiller handles KillProcess invocations.
type ProcessKiller interface {
	Kill(ctx context.Context, pid int32, callerID string) (service.KillResult, error)
}

// Invocation is a frame sent by a client.
type Invocation struct {
	Invoke string            `json:"invoke"`
	Args   []json.RawMessage `json:"args"`
}

// Hub accepts WebSocket connections and registers them as subscribers.
type Hub struct {
	members  Membership
	killer   ProcessKiller
	logger   *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]bool

	writeTimeout time.Duration
	pongTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	clients map[string]*client
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins admits browser connections from the given origins
// (e.g. "https://dash.example.com") in addition to same-origin ones.
// "*" admits any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				h.origins[strings.ToLower(o)] = true
			}
		}
	}
}

// NewHub creates a Hub. killer may be nil, in which case invocations are
// ignored. Only same-origin browser connections are accepted unless
// WithAllowedOrigins says otherwise.
func NewHub(members Membership, killer ProcessKiller, logger *slog.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		members:      members,
		killer:       killer,
		logger:       logging.OrDefault(logger).With(logging.Component("realtime")),
		origins:      make(map[string]bool),
		writeTimeout: defaultWriteTimeout,
		pongTimeout:  defaultPongTimeout,
		ctx:          ctx,
		cancel:       cancel,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin admits requests without an Origin header (non-browser
// clients), same-origin requests and configured origins. Browsers always
// send Origin, so other sites cannot drive KillProcess.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.origins["*"] || h.origins[strings.ToLower(strings.TrimRight(origin, "/"))] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	h.logger.Warn("websocket origin rejected",
		slog.String("origin", origin),
		slog.String("remote_addr", r.RemoteAddr),
	)
	return false
}

// ServeHTTP upgrades the request and serves the connection until the
// client goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}

	c := &client{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: h.writeTimeout,
	}
	if !h.add(c) {
		// Close ran while the upgrade was in flight.
		c.shutdown()
		return
	}
	defer h.remove(c)

	h.logger.Info("subscriber connected",
		logging.SubscriberID(c.id),
		slog.String("remote_addr", r.RemoteAddr),
	)
	h.readLoop(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	h.members.Join(c)
	return true
}

func (h *Hub) remove(c *client) {
	h.members.Leave(c.id)
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	h.logger.Info("subscriber disconnected", logging.SubscriberID(c.id))
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go h.pingLoop(c, pingDone)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", logging.SubscriberID(c.id), logging.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

		var inv Invocation
		if err := json.Unmarshal(data, &inv); err != nil {
			h.logger.Debug("ignoring malformed frame", logging.SubscriberID(c.id), logging.Error(err))
			continue
		}
		h.dispatch(c, inv)
	}
}

func (h *Hub) dispatch(c *client, inv Invocation) {
	switch inv.Invoke {
	case InvokeKillProcess:
		if h.killer == nil {
			return
		}
		var pid int32
		if len(inv.Args) > 0 {
			// A non-numeric pid is left at zero and rejected by the killer.
			_ = json.Unmarshal(inv.Args[0], &pid)
		}
		// The outcome is delivered as an event; the returned error is
		// already logged by the killer.
		_, _ = h.killer.Kill(h.ctx, pid, c.id)
	default:
		h.logger.Debug("ignoring unknown invocation",
			logging.SubscriberID(c.id),
			slog.String("invoke", inv.Invoke),
		)
	}
}

func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(h.pongTimeout * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to finish.
// Later upgrade attempts are refused.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	h.closed = true
	open := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		c.shutdown()
	}
	h.wg.Wait()
}

// client is one WebSocket connection acting as a broadcast subscriber.
type client struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var errClientClosed = errors.New("realtime: connection closed")

func (c *client) ID() string { return c.id }

// Send writes ev as one JSON text frame.
func (c *client) Send(ctx context.Context, ev broadcast.Event) error {
	if ev.Args == nil {
		ev.Args = []any{}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return errClientClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// shutdown sends a close frame and closes the connection, which ends
// the read loop.
func (c *client) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.close()
}

func (c *client) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}
