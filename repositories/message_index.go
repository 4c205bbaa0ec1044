package repositories

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"nestchat/domain"
)

// MessageIndex maintains a Bluge full-text index over text message
// content, scoped per conversation through a keyword field. Indexing is
// best-effort and asynchronous: the Badger rows remain the source of
// truth and search results are resolved back against them.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index upserts a message document. Only text-bearing messages are
// indexed; media messages have nothing searchable.
func (m *MessageIndex) Index(msg domain.Message) error {
	if msg.Text == "" {
		return nil
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("conversation_id", msg.ConversationID.String()).StoreValue()).
		AddField(bluge.NewTextField("text", msg.Text).StoreValue()).
		AddField(bluge.NewKeywordField("sender_id", msg.SenderID).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", msg.CreatedAt).StoreValue())

	return m.writer.Update(doc.ID(), doc)
}

// Search returns the ids of matching messages within one conversation,
// scored by relevance, plus the total hit count for pagination.
func (m *MessageIndex) Search(ctx context.Context, conversationID uuid.UUID, terms string, limit, offset int) ([]uuid.UUID, uint64, error) {
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.log.Warn("Failed to close index reader", "err", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation_id")).
		AddMust(bluge.NewMatchQuery(terms).SetField("text"))

	request := bluge.NewTopNSearch(limit, query).
		SetFrom(offset).
		WithStandardAggregations()

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return ids, iterator.Aggregations().Count(), nil
}
