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

const chatsCollection = "chats"

type chatDocument struct {
	ID              string    `bson:"_id"`
	Participants    []string  `bson:"participants"`
	ParticipantsKey string    `bson:"participantsKey"`
	LastMessage     string    `bson:"lastMessage,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func (d *chatDocument) toDomain() *domain.Chat {
	return &domain.Chat{
		ID:              d.ID,
		Participants:    d.Participants,
		ParticipantsKey: d.ParticipantsKey,
		LastMessage:     d.LastMessage,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// MongoChatRepository implements ChatRepository on a MongoDB collection.
type MongoChatRepository struct {
	coll *mongo.Collection
}

// NewMongoChatRepository creates a new MongoDB-based chat repository.
func NewMongoChatRepository(db *mongo.Database) *MongoChatRepository {
	return &MongoChatRepository{coll: db.Collection(chatsCollection)}
}

// EnsureIndexes creates the unique participants key index the
// find-or-create protocol relies on.
func (r *MongoChatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participantsKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	})
	return err
}

func (r *MongoChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = chat.CreatedAt
	}

	doc := chatDocument{
		ID:              chat.ID,
		Participants:    chat.Participants,
		ParticipantsKey: chat.ParticipantsKey,
		LastMessage:     chat.LastMessage,
		CreatedAt:       chat.CreatedAt,
		UpdatedAt:       chat.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateChat
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to insert chat")
		return err
	}
	return nil
}

func (r *MongoChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoChatRepository) GetByParticipantsKey(ctx context.Context, key string) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"participantsKey": key})
}

func (r *MongoChatRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list chats")
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []chatDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, len(docs))
	for i := range docs {
		chats[i] = docs[i].toDomain()
	}
	return chats, nil
}

func (r *MongoChatRepository) UpdateLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	res, err := r.coll.UpdateByID(ctx, chatID, bson.M{
		"$set": bson.M{"lastMessage": messageID, "updatedAt": at.UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (r *MongoChatRepository) findOne(ctx context.Context, filter bson.M) (*domain.Chat, error) {
	var doc chatDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}
