package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

var _ interfaces.Store = (*Store)(nil)

const (
	// conflictRetries bounds how often an optimistic transaction is replayed
	conflictRetries = 5
	// sweepBatch bounds the number of messages deleted per sweep transaction
	sweepBatch = 1000
	gcInterval = 10 * time.Minute
)

// Store is the Badger implementation of interfaces.Store
type Store struct {
	db   *badger.DB
	log  logrus.FieldLogger
	now  func() time.Time
	stop chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) a Badger store in dir
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	log = log.WithField("component", "badger")

	options := badger.DefaultOptions(dir).
		WithLogger(log).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}

	s := &Store{
		db:   db,
		log:  log,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.gcLoop()

	log.WithField("dir", dir).Info("Badger store ready")
	return s, nil
}

// update runs fn in a read-write transaction, replaying it on write conflicts
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return s.mapClosed(err)
		}
	}
	return err
}

func (s *Store) mapClosed(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return interfaces.ErrStoreClosed
	}
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GetIdentityByName retrieves an identity by its unique name
func (s *Store) GetIdentityByName(ctx context.Context, name string) (*types.Identity, error) {
	if s.isClosed() {
		return nil, interfaces.ErrStoreClosed
	}

	var record identityRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decMode.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", s.mapClosed(err))
	}
	return record.toIdentity(), nil
}

// CreateIdentity inserts a new identity keyed by name
func (s *Store) CreateIdentity(ctx context.Context, identity *types.Identity) error {
	if s.isClosed() {
		return interfaces.ErrStoreClosed
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = s.now().UTC()
	}

	data, err := encMode.Marshal(fromIdentity(identity))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		key := identityKey(identity.Name)
		if _, err := txn.Get(key); err == nil {
			return interfaces.ErrIdentityExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// StoreMessage persists the record and both index entries in one transaction
func (s *Store) StoreMessage(ctx context.Context, message *types.Message) error {
	if s.isClosed() {
		return interfaces.ErrStoreClosed
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}
	message.Timestamp = message.Timestamp.UTC()

	record := fromMessage(message)
	data, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		keys := indexKeys(record)
		if err := txn.Set(keys[0], data); err != nil {
			return err
		}
		for _, key := range keys[1:] {
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation walks the party index newest first
func (s *Store) GetConversation(ctx context.Context, partyID string, limit int) ([]*types.Message, error) {
	messages := []*types.Message{}
	if limit <= 0 {
		return messages, nil
	}
	if s.isClosed() {
		return nil, interfaces.ErrStoreClosed
	}

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := partyHistoryPrefix(partyID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts from the greatest key under the prefix
		seek := append(bytes.Clone(prefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := getMessage(txn, idFromIndexKey(it.Item().Key()))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, record.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", s.mapClosed(err))
	}
	return messages, nil
}

// DeleteMessage removes one message and its index entries
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	if s.isClosed() {
		return interfaces.ErrStoreClosed
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		removed, err := deleteMessage(txn, messageID)
		if err != nil {
			return err
		}
		if !removed {
			return interfaces.ErrMessageNotFound
		}
		return nil
	})
}

// DeleteMessages removes every listed message in one transaction
func (s *Store) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	ids := uniqueIDs(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if s.isClosed() {
		return 0, interfaces.ErrStoreClosed
	}

	var deleted int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		deleted = 0
		for _, id := range ids {
			removed, err := deleteMessage(txn, id)
			if err != nil {
				return err
			}
			if removed {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return deleted, nil
}

// DeleteMessagesBefore scans the age index up to cutoff and deletes in batches
// FUNCTIONAL DISCOVERY: The sweep is idempotent, so splitting it across several
// transactions only means a crash mid-sweep leaves work for the next run
func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.isClosed() {
		return 0, interfaces.ErrStoreClosed
	}

	limit := cutoff.UnixNano()
	var expired []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(agePrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			nanos, id, ok := parseAgeKey(it.Item().Key())
			if !ok {
				continue
			}
			if nanos >= limit {
				break
			}
			expired = append(expired, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired messages: %w", s.mapClosed(err))
	}

	var total int64
	for _, batch := range lo.Chunk(expired, sweepBatch) {
		deleted, err := s.DeleteMessages(ctx, batch)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("failed to delete expired messages: %w", err)
		}
	}
	return total, nil
}

// HealthCheck verifies the store is open and readable
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() || s.db.IsClosed() {
		return interfaces.ErrStoreClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(identityKey(""))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close stops value-log GC and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()

	s.log.Info("Closing BadgerDB")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger: %w", err)
	}
	return nil
}

// gcLoop reclaims value-log space freed by deletions
func (s *Store) gcLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for s.db.RunValueLogGC(0.5) == nil {
			}
		case <-s.stop:
			return
		}
	}
}

func getMessage(txn *badger.Txn, id string) (messageRecord, error) {
	var record messageRecord
	item, err := txn.Get(messageKey(id))
	if err != nil {
		return record, err
	}
	err = item.Value(func(val []byte) error {
		return decMode.Unmarshal(val, &record)
	})
	return record, err
}

// deleteMessage removes a message and every index key; false when it did not exist
func deleteMessage(txn *badger.Txn, id string) (bool, error) {
	record, err := getMessage(txn, id)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, key := range indexKeys(record) {
		if err := txn.Delete(key); err != nil {
			return false, err
		}
	}
	return true, nil
}
