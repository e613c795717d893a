package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	// FUNCTIONAL DISCOVERY: Browser clients are served from other origins; all are allowed
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher receives decoded events and connection lifecycle notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Connection, envelope types.Envelope) error
	Disconnect(ctx context.Context, conn interfaces.Connection) error
}

// Options tunes heartbeat and write behavior of every connection
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions returns 30s pings with a 60s read deadline
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: DefaultWriteTimeout,
		BufferSize:   DefaultBufferSize,
	}
}

// Handler terminates websocket connections and feeds their frames to a Dispatcher
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic
type Handler struct {
	dispatcher Dispatcher
	options    Options
	log        logrus.FieldLogger

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

// NewHandler creates a new WebSocket handler
func NewHandler(dispatcher Dispatcher, options Options, log logrus.FieldLogger) *Handler {
	defaults := DefaultOptions()
	if options.PingInterval <= 0 {
		options.PingInterval = defaults.PingInterval
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaults.ReadTimeout
	}
	return &Handler{
		dispatcher: dispatcher,
		options:    options,
		log:        log.WithField("component", "websocket"),
		conns:      make(map[*Connection]struct{}),
	}
}

// HandleWebSocket upgrades the request and starts the connection's read loop
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("error", err).Warn("WebSocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn, h.options.BufferSize, h.options.WriteTimeout)
	h.track(wsConn)

	h.log.WithFields(logrus.Fields{"conn": wsConn.ID(), "remote": r.RemoteAddr}).Debug("Connection opened")

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// enables clean resource cleanup and heartbeat monitoring
	h.wg.Add(1)
	go h.handleConnection(wsConn)
}

// Shutdown closes every open connection and waits for their read loops to finish
// FUNCTIONAL DISCOVERY: http.Server.Shutdown does not touch hijacked connections,
// so websocket clients must be closed explicitly
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveConnections returns the number of open websocket connections
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) track(conn *Connection) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// handleConnection reads frames until the client goes away
// ARCHITECTURAL DISCOVERY: Frames of one connection are dispatched sequentially by
// this loop, which is what preserves per-connection arrival order
func (h *Handler) handleConnection(conn *Connection) {
	log := h.log.WithField("conn", conn.ID())

	defer h.wg.Done()
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		// even if connection handling exits unexpectedly
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.dispatcher.Disconnect(ctx, conn); err != nil {
			log.WithField("error", err).Debug("Disconnect not applied")
		}
		h.untrack(conn)
		_ = conn.Close()
		log.Debug("Connection closed")
	}()

	// TECHNICAL DISCOVERY: Read deadline is pushed forward by every pong
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
		log.WithField("error", err).Warn("Failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	go h.heartbeat(conn)

	// FUNCTIONAL DISCOVERY: Dispatch runs detached from the connection's lifetime.
	// A close mid-frame only ends this loop at the next read; the frame already
	// in hand is carried through to the store.
	ctx := context.Background()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithField("error", err).Warn("WebSocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// FUNCTIONAL DISCOVERY: Malformed frames and unknown events are logged and
		// ignored; the connection stays open
		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.WithField("error", err).Warn("Ignoring malformed frame")
			continue
		}
		if err := h.dispatcher.Dispatch(ctx, conn, envelope); err != nil {
			log.WithFields(logrus.Fields{"event": envelope.Event, "error": err}).Warn("Ignoring frame")
		}
	}
}

// heartbeat pings the client until the connection closes
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.writeControl(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
