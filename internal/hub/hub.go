package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"courier/internal/presence"
	"courier/pkg/interfaces"
	"courier/pkg/types"
)

// Hub decodes inbound events and coordinates presence changes
// ARCHITECTURAL DISCOVERY: Central coordination point for all event flow
// maintains clean separation between WebSocket handling and message routing
type Hub struct {
	// FUNCTIONAL DISCOVERY: One buffered FIFO carries both registers and disconnects,
	// so a connection's disconnect can never overtake its own earlier register
	opChannel       chan operation
	shutdownChannel chan struct{}
	done            chan struct{}

	// ARCHITECTURAL DISCOVERY: Dependency injection enables clean testing with mocks
	directory *presence.Directory
	router    interfaces.MessageRouter
	acks      interfaces.Acknowledger
	log       logrus.FieldLogger

	running bool
	mu      sync.RWMutex
}

type opKind int

const (
	opRegister opKind = iota
	opDisconnect
)

// operation is one queued directory mutation
type operation struct {
	kind    opKind
	conn    interfaces.Connection
	payload types.RegisterPayload
	done    chan struct{}
}

// NewHub creates a new hub
func NewHub(directory *presence.Directory, router interfaces.MessageRouter, acks interfaces.Acknowledger, log logrus.FieldLogger) *Hub {
	return &Hub{
		directory: directory,
		router:    router,
		acks:      acks,
		log:       log.WithField("component", "hub"),
	}
}

// Directory returns the presence directory owned by the hub
func (h *Hub) Directory() *presence.Directory {
	return h.directory
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine is the only writer of the directory,
// so register and disconnect are applied in the order they arrive
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	h.opChannel = make(chan operation, 200)
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})
	h.running = true

	h.log.Info("Starting hub")
	go h.run(ctx, h.opChannel, h.shutdownChannel, h.done)
	return nil
}

// Stop gracefully shuts down the hub and waits for the loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	h.log.Info("Stopping hub")
	<-done
	return nil
}

// Dispatch handles one inbound envelope from conn
// FUNCTIONAL DISCOVERY: Each connection's read loop calls Dispatch sequentially,
// which preserves per-connection arrival order without a shared queue.
// Frame-level problems are returned; delivery and persistence failures are
// logged by the components that own them and never reach the client.
// Persistence runs detached from ctx: a sender that disconnects mid-send still
// gets its message stored, and an acknowledgment still deletes.
func (h *Hub) Dispatch(ctx context.Context, conn interfaces.Connection, envelope types.Envelope) error {
	switch envelope.Event {
	case types.EventRegister:
		var payload types.RegisterPayload
		if err := decode(envelope, &payload); err != nil {
			return err
		}
		if err := payload.Validate(); err != nil {
			h.log.WithField("conn", conn.ID()).Debug("Ignoring registration without id")
			return nil
		}
		return h.Register(ctx, conn, payload)

	case types.EventSendMessage:
		var payload types.SendMessagePayload
		if err := decode(envelope, &payload); err != nil {
			return err
		}
		_, _ = h.router.Send(context.WithoutCancel(ctx), payload)
		return nil

	case types.EventSeenMessage:
		var payload types.SeenMessagePayload
		if err := decode(envelope, &payload); err != nil {
			return err
		}
		_, _ = h.acks.Acknowledge(context.WithoutCancel(ctx), payload.IDs())
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Event)
	}
}

// Register queues a directory upsert and waits until it has been applied.
// Once queued the upsert is applied even if ctx ends first; a later Disconnect
// for the same conn is queued behind it and undoes it.
func (h *Hub) Register(ctx context.Context, conn interfaces.Connection, payload types.RegisterPayload) error {
	return h.submit(ctx, operation{kind: opRegister, conn: conn, payload: payload})
}

// Disconnect queues removal of every session bound to conn and waits until it has been applied
func (h *Hub) Disconnect(ctx context.Context, conn interfaces.Connection) error {
	return h.submit(ctx, operation{kind: opDisconnect, conn: conn})
}

func (h *Hub) submit(ctx context.Context, op operation) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	ch, stopped := h.opChannel, h.done
	h.mu.RUnlock()

	op.done = make(chan struct{})
	select {
	case ch <- op:
	case <-stopped:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	return wait(ctx, op.done, stopped)
}

// TECHNICAL DISCOVERY: Waiting on loop exit rather than the shutdown signal also
// covers a loop that ended because its context was cancelled
func wait(ctx context.Context, done, stopped <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-stopped:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
// preventing race conditions while maintaining high throughput
func (h *Hub) run(ctx context.Context, ops chan operation, shutdown, done chan struct{}) {
	defer close(done)
	defer h.log.Info("Hub processing stopped")

	for {
		select {
		case op := <-ops:
			h.apply(op)

		case <-shutdown:
			return

		case <-ctx.Done():
			h.log.Info("Hub context cancelled")
			return
		}
	}
}

func (h *Hub) apply(op operation) {
	defer close(op.done)

	switch op.kind {
	case opRegister:
		h.directory.Register(op.payload.ID, op.payload.Name, op.conn)
	case opDisconnect:
		if id, removed := h.directory.RemoveByTransport(op.conn); removed {
			h.log.WithFields(logrus.Fields{"id": id, "conn": op.conn.ID()}).Debug("Connection deregistered")
		}
	}
}

func decode(envelope types.Envelope, v any) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, envelope.Event)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedPayload, envelope.Event, err)
	}
	return nil
}
