// Package messages persists encrypted direct messages in BadgerDB.
package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when a message id is unknown
var ErrNotFound = errors.New("message not found")

// maxTxnRetries bounds retries of a write transaction on a badger conflict
const maxTxnRetries = 3

// Store is the BadgerDB message store.
//
// Key layout:
//
//	msg:{id}                           -> JSON domain.Message
//	conv:{low}:{high}:{ts19}:{id}      -> id, one per message, low/high are the sorted participant ids
//	unread:{receiver}:{id}             -> empty, present while the message is unread
//
// The 19 digit zero padded timestamp keeps conversation keys in chronological
// order under lexicographic iteration.
type Store struct {
	db  *badger.DB
	log *zap.Logger
	now func() time.Time
}

// NewStore wraps an open badger database
func NewStore(db *badger.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

func msgKey(id string) []byte {
	return []byte("msg:" + id)
}

func convPrefix(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("conv:%s:%s:", a, b)
}

func convKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", convPrefix(m.SenderID, m.ReceiverID), m.CreatedAt.UnixNano(), m.ID))
}

func unreadPrefix(owner string) string {
	return "unread:" + owner + ":"
}

func unreadKey(owner, id string) []byte {
	return []byte(unreadPrefix(owner) + id)
}

// Create assigns an id and timestamp and stores the message with its indexes
func (s *Store) Create(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = domain.ContentText
	}

	m := domain.Message{
		ID:               uuid.New().String(),
		SenderID:         in.SenderID,
		ReceiverID:       in.ReceiverID,
		ContentEncrypted: in.ContentEncrypted,
		ContentType:      contentType,
		FileName:         in.FileName,
		FileSize:         in.FileSize,
		IsRead:           false,
		CreatedAt:        s.now().UTC(),
	}

	value, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(m.ID), value); err != nil {
			return err
		}
		if err := txn.Set(convKey(m), []byte(m.ID)); err != nil {
			return err
		}
		return txn.Set(unreadKey(m.ReceiverID, m.ID), nil)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}

	s.log.Debug("message stored",
		zap.String("message_id", m.ID),
		zap.String("sender_id", m.SenderID),
		zap.String("receiver_id", m.ReceiverID))

	return m, nil
}

// Get loads one message by id
func (s *Store) Get(ctx context.Context, id string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	var m domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = readMessage(txn, id)
		return err
	})
	return m, err
}

// BulkMarkRead flags as read every message in ids whose receiver is owner.
// It returns the ids that actually changed; already read, foreign and
// unknown ids are skipped, which makes the call idempotent.
func (s *Store) BulkMarkRead(ctx context.Context, ids []string, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var modified []string
	err := s.update(func(txn *badger.Txn) error {
		modified = modified[:0]
		seen := make(map[string]struct{}, len(ids))

		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			m, err := readMessage(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if m.ReceiverID != owner || m.IsRead {
				continue
			}

			m.IsRead = true
			value, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			if err := txn.Set(msgKey(id), value); err != nil {
				return err
			}
			if err := txn.Delete(unreadKey(owner, id)); err != nil {
				return err
			}
			modified = append(modified, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	return modified, nil
}

// Conversation returns up to limit of the most recent messages exchanged
// between a and b, oldest first. A limit <= 0 returns the whole conversation.
func (s *Store) Conversation(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(convPrefix(a, b))
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			m, err := readMessage(txn, string(id))
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UnreadCount returns how many messages addressed to owner are unread
func (s *Store) UnreadCount(ctx context.Context, owner string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(unreadPrefix(owner))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("badger transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return err
}

func readMessage(txn *badger.Txn, id string) (domain.Message, error) {
	item, err := txn.Get(msgKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}

	var m domain.Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message %s: %w", id, err)
	}
	return m, nil
}
