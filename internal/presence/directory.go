package presence

import (
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

const (
	// DefaultPageSize applies when List is called with a non-positive limit
	DefaultPageSize = 10
)

// Entry is one live session together with the transport handle it owns
type Entry struct {
	Session types.Session
	Conn    interfaces.Connection
}

// Publisher observes directory mutations
// ARCHITECTURAL DISCOVERY: Publishing is invoked after the mutation and outside
// the directory lock, so readers never wait on it. It does run on the caller's
// goroutine, so implementations must not block on a single client.
type Publisher interface {
	Publish(entries []Entry)
}

// Directory is the in-memory set of identities with an open connection
// ARCHITECTURAL DISCOVERY: Pure session tracking without delivery logic keeps a
// clean separation between who is online and what gets written to them
type Directory struct {
	mu        sync.RWMutex      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	entries   map[string]*Entry // id -> Entry for O(1) delivery lookup
	order     []string          // first-registration order of ids
	publisher Publisher
	log       logrus.FieldLogger
}

// NewDirectory creates an empty directory. A nil publisher disables publishing.
func NewDirectory(publisher Publisher, log logrus.FieldLogger) *Directory {
	return &Directory{
		entries:   make(map[string]*Entry),
		publisher: publisher,
		log:       log.WithField("component", "presence"),
	}
}

// Register binds id to conn, replacing any previous session for the same id,
// then publishes the full snapshot. An empty id is ignored.
// FUNCTIONAL DISCOVERY: The superseded handle is abandoned, not closed; its
// own disconnect later finds nothing to remove because the handle no longer matches
func (d *Directory) Register(id, name string, conn interfaces.Connection) bool {
	if id == "" || conn == nil {
		d.log.WithField("name", name).Debug("Ignoring registration without id")
		return false
	}

	d.mu.Lock()
	if existing, ok := d.entries[id]; ok {
		existing.Session.Name = name
		existing.Conn = conn
	} else {
		d.entries[id] = &Entry{Session: types.Session{ID: id, Name: name}, Conn: conn}
		d.order = append(d.order, id)
	}
	snapshot := d.entriesLocked()
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"id": id, "name": name, "conn": conn.ID()}).Info("Session registered")
	d.publish(snapshot)
	return true
}

// RemoveByTransport removes every session bound to conn and publishes only if
// something was removed. The returned id is the first one removed.
// RACE CONDITION FIX: Matching by handle means a stale connection closing after
// a re-register cannot remove the newer session
func (d *Directory) RemoveByTransport(conn interfaces.Connection) (string, bool) {
	if conn == nil {
		return "", false
	}

	d.mu.Lock()
	var removed []string
	for _, id := range d.order {
		if d.entries[id].Conn == conn {
			removed = append(removed, id)
			delete(d.entries, id)
		}
	}
	if len(removed) == 0 {
		d.mu.Unlock()
		return "", false
	}
	d.order = lo.Without(d.order, removed...)
	snapshot := d.entriesLocked()
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"ids": removed, "conn": conn.ID()}).Info("Session removed")
	d.publish(snapshot)
	return removed[0], true
}

// Lookup returns the live session for id
func (d *Directory) Lookup(id string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// List filters sessions by a case-insensitive substring of the name and then
// paginates. Total is the filtered count before pagination.
func (d *Directory) List(search string, offset, limit int) types.DirectoryPage {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	matched := lo.Filter(d.Snapshot(), func(s types.Session, _ int) bool {
		return needle == "" || strings.Contains(strings.ToLower(s.Name), needle)
	})

	return types.DirectoryPage{
		Total: len(matched),
		Users: lo.Subset(matched, offset, uint(limit)),
	}
}

// Snapshot returns every session in directory order
func (d *Directory) Snapshot() []types.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sessionsOf(d.entriesLocked())
}

// Count returns the number of live sessions
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *Directory) entriesLocked() []Entry {
	return lo.Map(d.order, func(id string, _ int) Entry {
		return *d.entries[id]
	})
}

func (d *Directory) publish(snapshot []Entry) {
	if d.publisher != nil {
		d.publisher.Publish(snapshot)
	}
}

func sessionsOf(entries []Entry) []types.Session {
	return lo.Map(entries, func(e Entry, _ int) types.Session {
		return e.Session
	})
}
