//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=../../internal/mocks/mock_router.go -package=mocks
package interfaces

import (
	"context"

	"courier/pkg/types"
)

// MessageRouter persists and forwards a message to its receiver if online
type MessageRouter interface {
	Send(ctx context.Context, payload types.SendMessagePayload) (*types.Message, error)
}

// Acknowledger deletes messages the receiver has seen
type Acknowledger interface {
	Acknowledge(ctx context.Context, messageIDs []string) (int64, error)
}
