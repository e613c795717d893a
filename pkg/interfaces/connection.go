//go:generate go run go.uber.org/mock/mockgen -source=connection.go -destination=../../internal/mocks/mock_connection.go -package=mocks
package interfaces

// Connection is the transport handle a Session is bound to
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps the presence directory and router independent of gorilla/websocket
type Connection interface {
	// WriteJSON queues a JSON frame for the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Implementations must use a single-writer pattern
	// because broadcasts and deliveries write from different goroutines
	WriteJSON(v any) error

	// Close closes the connection and releases its resources
	Close() error

	// ID returns a process-unique handle identifier, used for logging and
	// for matching the handle on disconnect
	ID() string
}
