package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

const messagesCollection = "messages"

type messageDocument struct {
	ID               string    `bson:"_id"`
	ChatID           string    `bson:"chatId"`
	Sender           string    `bson:"sender"`
	Text             string    `bson:"text"`
	ClientMessageKey string    `bson:"clientMessageKey"`
	CreatedAt        time.Time `bson:"createdAt"`
}

func (d *messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:               d.ID,
		ChatID:           d.ChatID,
		Sender:           d.Sender,
		Text:             d.Text,
		ClientMessageKey: d.ClientMessageKey,
		CreatedAt:        d.CreatedAt,
	}
}

// MongoMessageRepository implements MessageRepository on a MongoDB collection.
type MongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoDB-based message repository.
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{coll: db.Collection(messagesCollection)}
}

// EnsureIndexes creates the client key uniqueness and history indexes.
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clientMessageKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
		},
	})
	return err
}

func (r *MongoMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	doc := messageDocument{
		ID:               msg.ID,
		ChatID:           msg.ChatID,
		Sender:           msg.Sender,
		Text:             msg.Text,
		ClientMessageKey: msg.ClientMessageKey,
		CreatedAt:        msg.CreatedAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateMessage
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldChatID, msg.ChatID).
			Str(log.FieldClientKey, msg.ClientMessageKey).
			Msg("failed to insert message")
		return err
	}
	return nil
}

func (r *MongoMessageRepository) GetByClientKey(ctx context.Context, key string) (*domain.Message, error) {
	var doc messageDocument
	if err := r.coll.FindOne(ctx, bson.M{"clientMessageKey": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MongoMessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to list messages")
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	msgs := make([]*domain.Message, len(docs))
	for i := range docs {
		msgs[i] = docs[i].toDomain()
	}
	return msgs, nil
}
