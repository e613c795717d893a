package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	dbconfig "courier/pkg/database"
	"courier/pkg/interfaces"
	"courier/pkg/types"
)

var _ interfaces.Store = (*Manager)(nil)

// Manager is the SQLite implementation of interfaces.Store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          logrus.FieldLogger
	now          func() time.Time
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	stopped      chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and embedded migrations and
// starts the writer goroutine
func NewManager(config *dbconfig.Config, log logrus.FieldLogger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		log:          log.WithField("component", "sqlite"),
		now:          time.Now,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	manager.log.WithField("path", config.DatabasePath).Info("SQLite store ready")
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
// FUNCTIONAL DISCOVERY: Failed writes are reported to the caller once and never
// retried here; the caller decides whether the operation is abandoned
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.stopped)

	for {
		select {
		case op := <-m.writeChannel:
			if err := op.ctx.Err(); err != nil {
				op.result <- err
				continue
			}
			op.result <- op.operation(op.ctx, m.db)

		case <-m.shutdown:
			m.log.Debug("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-timer.C:
		return errors.New("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	// TECHNICAL DISCOVERY: The loop replies before it can observe shutdown, so a
	// result that exists when the loop has stopped is still the real outcome
	select {
	case err := <-result:
		return err
	case <-m.stopped:
		select {
		case err := <-result:
			return err
		default:
			return interfaces.ErrStoreClosed
		}
	}
}

// GetIdentityByName retrieves an identity by its unique name
func (m *Manager) GetIdentityByName(ctx context.Context, name string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM identities WHERE name = ?`, name)

	var identity types.Identity
	if err := row.Scan(&identity.ID, &identity.Name, &identity.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return &identity, nil
}

// CreateIdentity inserts a new identity
func (m *Manager) CreateIdentity(ctx context.Context, identity *types.Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = m.now().UTC()
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO identities (id, name, created_at) VALUES (?, ?, ?)`,
			identity.ID, identity.Name, identity.CreatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return interfaces.ErrIdentityExists
		}
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		return nil
	})
}

// StoreMessage stores a message in the database
// ARCHITECTURAL DISCOVERY: The store owns id assignment so clients can never
// choose or collide message ids
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = m.now()
	}
	message.Timestamp = message.Timestamp.UTC()

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, sender_id, receiver_id, body, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`,
			message.ID,
			message.SenderID,
			message.ReceiverID,
			message.Body,
			message.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// GetConversation retrieves the newest messages involving a party
func (m *Manager) GetConversation(ctx context.Context, partyID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return []*types.Message{}, nil
	}

	// ARCHITECTURAL DISCOVERY: Read operations are concurrent - no need for writeChannel
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, body, timestamp
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, partyID, partyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var message types.Message
		if err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.ReceiverID,
			&message.Body,
			&message.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	return messages, nil
}

// DeleteMessage removes a single message by id
func (m *Manager) DeleteMessage(ctx context.Context, messageID string) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		result, err := db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
		if err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted messages: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrMessageNotFound
		}
		return nil
	})
}

// DeleteMessages removes a batch of messages in a single transaction
// FUNCTIONAL DISCOVERY: Transaction makes the batch all-or-nothing so a failure
// is reported for the whole set rather than silently losing part of it
func (m *Manager) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	ids := lo.Uniq(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		// TECHNICAL DISCOVERY: Chunking keeps each statement below SQLite's
		// bound-parameter limit for very large acknowledgments
		var total int64
		for _, chunk := range lo.Chunk(ids, 500) {
			query := `DELETE FROM messages WHERE id IN (?` + strings.Repeat(",?", len(chunk)-1) + `)`
			args := lo.Map(chunk, func(id string, _ int) any { return id })
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to delete messages: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to count deleted messages: %w", err)
			}
			total += affected
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message deletion: %w", err)
		}
		deleted = total
		return nil
	})
	return deleted, err
}

// DeleteMessagesBefore removes every message older than cutoff
func (m *Manager) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		result, err := db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete expired messages: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count expired messages: %w", err)
		}
		return nil
	})
	return deleted, err
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
