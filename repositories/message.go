//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"nestchat/domain"
	"nestchat/errors"
)

type IMessageRepository interface {
	Store(msg domain.Message) (domain.Message, error)
	List(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error)
	GetByID(conversationID, messageID uuid.UUID) (domain.Message, error)
	MarkReadThrough(conversationID uuid.UUID, readerID string, throughID uuid.UUID) (int, error)
	UnreadCount(conversationID uuid.UUID, viewer string) (int, error)
	LastMessage(conversationID uuid.UUID) (*domain.Message, error)
	Close() error
}

// MessageRepository persists messages in BadgerDB.
//
// The primary key is "msg:{conversation}:{timestamp_padded}:{seq_padded}":
//  1. The 19-digit zero-padded UnixNano makes lexicographic order equal
//     to chronological order.
//  2. The Badger sequence breaks ties between messages accepted in the
//     same nanosecond, in insertion order.
//
// A secondary index "idx:msg:{conversation}:{message_id}" resolves a
// message id back to its primary key for read receipts.
type MessageRepository struct {
	db       *badger.DB
	seq      *badger.Sequence
	log      *slog.Logger
	pageSize int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, err
	}
	return &MessageRepository{db: db, seq: seq, log: log, pageSize: pageSize}, nil
}

// Close releases the unused part of the sequence lease.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func messageKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d",
		msg.ConversationID,
		msg.CreatedAt.UnixNano(),
		msg.Seq,
	))
}

func messagePrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

func messageIdxKey(conversationID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:msg:%s:%s", conversationID, messageID))
}

// Store assigns the insertion sequence and persists the message with
// its index entry in one transaction.
func (m *MessageRepository) Store(msg domain.Message) (domain.Message, error) {
	seq, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, err
	}
	msg.Seq = seq

	data, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}
	key := messageKey(msg)

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIdxKey(msg.ConversationID, msg.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// List returns one chronological page of messages ending at the cursor,
// newest page first. The returned cursor points at the oldest message
// of the page and is nil once history is exhausted.
func (m *MessageRepository) List(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error) {
	prefix := messagePrefix(conversationID)
	prefixLen := len(prefix)

	var page []domain.Message
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		} else {
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(page) < m.pageSize; it.Next() {
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(v []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(v, &msg); err != nil {
					return err
				}
				page = append(page, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Collected newest-first; flip to chronological order.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	if len(page) < m.pageSize {
		return page, nil, nil
	}
	return page, &lastKey, nil
}

func (m *MessageRepository) GetByID(conversationID, messageID uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := resolvePrimaryKey(txn, conversationID, messageID)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &msg)
		})
	})
	return msg, err
}

// MarkReadThrough flags every message ordered at or before throughID as
// read, skipping the reader's own messages. Returns how many flags
// actually flipped; the operation is idempotent.
func (m *MessageRepository) MarkReadThrough(conversationID uuid.UUID, readerID string, throughID uuid.UUID) (int, error) {
	prefix := messagePrefix(conversationID)
	changed := 0

	err := m.db.Update(func(txn *badger.Txn) error {
		throughKey, err := resolvePrimaryKey(txn, conversationID, throughID)
		if err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key(), throughKey) > 0 {
				break
			}

			var msg domain.Message
			err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &msg)
			})
			if err != nil {
				return err
			}
			if msg.IsRead || msg.SenderID == readerID {
				continue
			}

			msg.IsRead = true
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(item.KeyCopy(nil), data); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// UnreadCount recomputes the viewer's unread count with a full scan of
// the conversation. Recomputing instead of maintaining a counter keeps
// the value exact under any interleaving of sends and receipts.
func (m *MessageRepository) UnreadCount(conversationID uuid.UUID, viewer string) (int, error) {
	prefix := messagePrefix(conversationID)
	count := 0

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(v, &msg); err != nil {
					return err
				}
				if !msg.IsRead && msg.SenderID != viewer {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LastMessage returns the most recent message, or nil on an empty
// conversation.
func (m *MessageRepository) LastMessage(conversationID uuid.UUID) (*domain.Message, error) {
	prefix := messagePrefix(conversationID)
	var last *domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		return it.Item().Value(func(v []byte) error {
			var msg domain.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			last = &msg
			return nil
		})
	})
	return last, err
}

func resolvePrimaryKey(txn *badger.Txn, conversationID, messageID uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIdxKey(conversationID, messageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: message %s", errors.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
