//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"nestchat/domain"
	"nestchat/errors"
)

type IConversationRepository interface {
	GetOrCreate(conv domain.Conversation) (domain.Conversation, bool, error)
	GetByID(id uuid.UUID) (domain.Conversation, error)
	Update(conv domain.Conversation) error
	ListForUser(userID string) ([]domain.Conversation, error)
}

// ConversationRepository persists conversations in BadgerDB.
// Three key families are maintained in the same transaction:
//
//	conv:id:{uuid}                  -> conversation JSON
//	conv:pair:{propertyID}:{buyerID} -> conversation id (uniqueness of the pair)
//	conv:user:{userID}:{uuid}        -> conversation id (per-participant inbox scan)
type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

func idKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("conv:id:%s", id))
}

func pairKey(propertyID, buyerID string) []byte {
	return []byte(fmt.Sprintf("conv:pair:%s:%s", propertyID, buyerID))
}

func userKey(userID string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("conv:user:%s:%s", userID, id))
}

// GetOrCreate returns the conversation for the (property, buyer) pair,
// creating it when the pair is unseen. The pair index is read and
// written inside one transaction so two concurrent first messages can
// never produce two conversations; the loser of the race retries and
// finds the winner's row.
func (r *ConversationRepository) GetOrCreate(conv domain.Conversation) (domain.Conversation, bool, error) {
	for {
		var result domain.Conversation
		var created bool

		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(conv.PropertyID, conv.BuyerID))
			if err == nil {
				return item.Value(func(v []byte) error {
					existingID, err := uuid.Parse(string(v))
					if err != nil {
						return err
					}
					result, err = getConversation(txn, existingID)
					return err
				})
			}
			if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			data, err := json.Marshal(conv)
			if err != nil {
				return err
			}
			idVal := []byte(conv.ID.String())
			if err := txn.Set(idKey(conv.ID), data); err != nil {
				return err
			}
			if err := txn.Set(pairKey(conv.PropertyID, conv.BuyerID), idVal); err != nil {
				return err
			}
			if err := txn.Set(userKey(conv.OwnerID, conv.ID), idVal); err != nil {
				return err
			}
			if err := txn.Set(userKey(conv.BuyerID, conv.ID), idVal); err != nil {
				return err
			}
			result = conv
			created = true
			return nil
		})

		if stderrors.Is(err, badger.ErrConflict) {
			r.log.Debug("Conversation creation raced, retrying",
				"property_id", conv.PropertyID, "buyer_id", conv.BuyerID)
			continue
		}
		return result, created, err
	}
}

func (r *ConversationRepository) GetByID(id uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, id)
		return err
	})
	return conv, err
}

// Update rewrites the conversation row. Identity fields never change,
// so only the id key needs a write.
func (r *ConversationRepository) Update(conv domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(idKey(conv.ID)); stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conv.ID)
		}
		return txn.Set(idKey(conv.ID), data)
	})
}

// ListForUser scans the per-user index and resolves each entry.
func (r *ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("conv:user:%s:", userID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				id, err := uuid.Parse(string(v))
				if err != nil {
					return err
				}
				conv, err := getConversation(txn, id)
				if err != nil {
					return err
				}
				conversations = append(conversations, conv)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return conversations, err
}

func getConversation(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	item, err := txn.Get(idKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return conv, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return conv, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &conv)
	})
	return conv, err
}
