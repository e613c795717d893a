package router

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"courier/internal/presence"
	"courier/pkg/interfaces"
	"courier/pkg/types"
)

var _ interfaces.MessageRouter = (*Router)(nil)

// Locator finds the live session of a receiver
type Locator interface {
	Lookup(id string) (presence.Entry, bool)
}

// Router implements the MessageRouter interface
// ARCHITECTURAL DISCOVERY: Pure message routing logic without session management or connection handling
// maintains clean separation between routing decisions and message delivery mechanisms
type Router struct {
	locator Locator
	store   interfaces.MessageStore
	log     logrus.FieldLogger
}

// NewRouter creates a new message router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock components
func NewRouter(locator Locator, store interfaces.MessageStore, log logrus.FieldLogger) *Router {
	return &Router{
		locator: locator,
		store:   store,
		log:     log.WithField("component", "router"),
	}
}

// Send persists a message and forwards it to the receiver if online
// FUNCTIONAL DISCOVERY: Persist-then-route pattern ensures message durability before delivery.
// The store assigns id and timestamp so clients can never choose either
func (r *Router) Send(ctx context.Context, payload types.SendMessagePayload) (*types.Message, error) {
	if err := payload.Validate(); err != nil {
		r.log.WithFields(logrus.Fields{
			"sender":   payload.SenderID,
			"receiver": payload.ReceiverID,
		}).Warn("Dropping invalid message")
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	message := &types.Message{
		SenderID:   payload.SenderID,
		ReceiverID: payload.ReceiverID,
		Body:       payload.Body,
	}

	// ARCHITECTURAL DISCOVERY: Database persistence must complete before routing
	// so a delivered message always has a record the receiver can acknowledge
	if err := r.store.StoreMessage(ctx, message); err != nil {
		r.log.WithFields(logrus.Fields{
			"sender":   message.SenderID,
			"receiver": message.ReceiverID,
			"error":    err,
		}).Error("Failed to persist message, not delivering")
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	r.deliver(message)
	return message, nil
}

// deliver writes receiveMessage to the receiver only; the sender is never echoed
// FUNCTIONAL DISCOVERY: A receiver that is offline, or that disconnects while the
// message is being persisted, is a normal outcome and the record simply waits
func (r *Router) deliver(message *types.Message) {
	entry, online := r.locator.Lookup(message.ReceiverID)
	if !online {
		r.log.WithFields(logrus.Fields{
			"message":  message.ID,
			"receiver": message.ReceiverID,
		}).Debug("Receiver offline, message stored only")
		return
	}

	frame := types.Outbound{Event: types.EventReceiveMessage, Data: message}
	if err := entry.Conn.WriteJSON(frame); err != nil {
		r.log.WithFields(logrus.Fields{
			"message":  message.ID,
			"receiver": message.ReceiverID,
			"error":    err,
		}).Warn("Failed to deliver message")
	}
}
