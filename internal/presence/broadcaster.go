package presence

import (
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

// queueWriter is implemented by transports that can refuse a frame instead of
// waiting for buffer space
type queueWriter interface {
	TryWriteJSON(v any) error
}

// Broadcaster publishes the full online-user list to every live session
type Broadcaster struct {
	log logrus.FieldLogger
}

func NewBroadcaster(log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{log: log.WithField("component", "broadcaster")}
}

// Publish writes updateOnlineUsers to each entry's connection
// FUNCTIONAL DISCOVERY: Publish runs on the hub loop, so it must not wait on any
// one client. A client whose write buffer is full is closed; its read loop then
// disconnects it and the remaining clients get a fresh snapshot.
func (b *Broadcaster) Publish(entries []Entry) {
	frame := types.Outbound{Event: types.EventUpdateOnlineUsers, Data: sessionsOf(entries)}

	for _, entry := range entries {
		if err := write(entry.Conn, frame); err != nil {
			b.log.WithFields(logrus.Fields{
				"id":    entry.Session.ID,
				"conn":  entry.Conn.ID(),
				"error": err,
			}).Warn("Failed to publish online users")
			_ = entry.Conn.Close()
		}
	}
}

func write(conn interfaces.Connection, frame types.Outbound) error {
	if qw, ok := conn.(queueWriter); ok {
		return qw.TryWriteJSON(frame)
	}
	return conn.WriteJSON(frame)
}
