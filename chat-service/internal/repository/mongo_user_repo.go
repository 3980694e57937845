package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
)

const usersCollection = "users"

// The users collection is written by the user service, which keys
// documents by ObjectID. String ids are accepted as well.
type userDocument struct {
	ID       interface{} `bson:"_id"`
	Username string      `bson:"username"`
	Email    string      `bson:"email"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{ID: idString(d.ID), Username: d.Username, Email: d.Email}
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// idCandidates returns the stored forms an external id may take.
func idCandidates(id string) []interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return []interface{}{oid, id}
	}
	return []interface{}{id}
}

// MongoUserRepository reads the users collection.
type MongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository creates a new MongoDB-based user repository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": bson.M{"$in": idCandidates(id)}})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	in := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		in = append(in, idCandidates(id)...)
	}

	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": in}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for i := range docs {
		u := docs[i].toDomain()
		users[u.ID] = u
	}
	return users, nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}
