package retention

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
)

var _ interfaces.Acknowledger = (*Manager)(nil)

const (
	DefaultMaxAge        = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Config controls the age sweep
type Config struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// Manager deletes acknowledged messages and sweeps messages past the retention window
// ARCHITECTURAL DISCOVERY: Acknowledgment and the sweep share no in-memory state;
// both converge on idempotent store deletions so they can overlap freely
type Manager struct {
	store  interfaces.MessageStore
	config Config
	log    logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a retention manager. Non-positive config values fall back to defaults.
func NewManager(store interfaces.MessageStore, config Config, log logrus.FieldLogger) *Manager {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	return &Manager{
		store:  store,
		config: config,
		log:    log.WithField("component", "retention"),
		now:    time.Now,
	}
}

// Acknowledge deletes the given messages for both parties in one batch.
// Blank ids are dropped and duplicates collapsed; an empty set is a no-op.
func (m *Manager) Acknowledge(ctx context.Context, messageIDs []string) (int64, error) {
	ids := lo.Uniq(lo.Compact(lo.Map(messageIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := m.store.DeleteMessages(ctx, ids)
	if err != nil {
		m.log.WithFields(logrus.Fields{"count": len(ids), "error": err}).Error("Failed to delete acknowledged messages")
		return 0, fmt.Errorf("acknowledge %d messages: %w", len(ids), err)
	}

	m.log.WithFields(logrus.Fields{"requested": len(ids), "deleted": deleted}).Debug("Acknowledged messages deleted")
	return deleted, nil
}

// Sweep deletes every message older than MaxAge
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.config.MaxAge)

	deleted, err := m.store.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		m.log.WithFields(logrus.Fields{"cutoff": cutoff, "error": err}).Error("Retention sweep failed")
		return 0, fmt.Errorf("sweep messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		m.log.WithFields(logrus.Fields{"cutoff": cutoff, "deleted": deleted}).Info("Expired messages swept")
	}
	return deleted, nil
}

// Start runs Sweep every SweepInterval until Stop is called or ctx is done
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(ctx, m.done)

	m.log.WithFields(logrus.Fields{
		"max_age":  m.config.MaxAge,
		"interval": m.config.SweepInterval,
	}).Info("Retention sweeper started")
	return nil
}

// Stop halts the sweeper and waits for an in-flight sweep to finish
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.log.Info("Retention sweeper stopped")
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are logged by Sweep; the next tick retries naturally
			_, _ = m.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
