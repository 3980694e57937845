package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/database"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

var testMongo *mongo.Client

func TestMain(m *testing.M) {
	code := runWithMongo(m)
	os.Exit(code)
}

func runWithMongo(m *testing.M) int {
	ctx := context.Background()
	l := log.L()

	container, err := startMongo(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("mongo container unavailable, mongo tests will be skipped")
		return m.Run()
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			l.Warn().Err(err).Msg("failed to terminate container")
		}
	}()

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("failed to get connection string")
		return m.Run()
	}

	client, _, err := database.NewMongo(ctx, database.MongoConfig{URI: uri, Database: "chat_test"})
	if err != nil {
		l.Warn().Err(err).Msg("failed to connect to mongo")
		return m.Run()
	}
	defer client.Disconnect(ctx)

	testMongo = client
	return m.Run()
}

// startMongo converts a provider panic into an error so hosts without
// Docker still run the SQL suites.
func startMongo(ctx context.Context) (container *mongodb.MongoDBContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker provider: %v", r)
		}
	}()
	return mongodb.Run(ctx, "mongo:7")
}

func mongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testMongo == nil {
		t.Skip("mongo container not available")
	}
	db := testMongo.Database(fmt.Sprintf("chat_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	return db
}

func TestMongoChatRepository_ConcurrentCreateSinglePair(t *testing.T) {
	db := mongoDB(t)
	repo := NewMongoChatRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Create(ctx, newChat(fmt.Sprintf("c%d", i), "u1", "u2"))
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				created++
			case ErrDuplicateChat:
				dupes++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, dupes)

	n, err := db.Collection(chatsCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMongoChatRepository_ListAndTouch(t *testing.T) {
	repo := NewMongoChatRepository(mongoDB(t))
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	require.NoError(t, repo.Create(ctx, newChat("c1", "u1", "u2")))
	require.NoError(t, repo.Create(ctx, newChat("c2", "u1", "u3")))

	require.NoError(t, repo.UpdateLastMessage(ctx, "c1", "m1", time.Now().Add(time.Minute)))

	chats, err := repo.ListByParticipant(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "m1", chats[0].LastMessage)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.ErrorIs(t, repo.UpdateLastMessage(ctx, "nope", "m1", time.Now()), ErrChatNotFound)
}

func TestMongoMessageRepository(t *testing.T) {
	repo := NewMongoMessageRepository(mongoDB(t))
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Message{
			ID:               fmt.Sprintf("m%d", i),
			ChatID:           "c1",
			Sender:           "u1",
			Text:             "hi",
			ClientMessageKey: fmt.Sprintf("k%d", i),
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	err := repo.Create(ctx, &domain.Message{ID: "m9", ChatID: "c1", Sender: "u1", Text: "x", ClientMessageKey: "k1", CreatedAt: base})
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	got, err := repo.GetByClientKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.True(t, base.Add(time.Second).Equal(got.CreatedAt))

	recent, err := repo.ListRecent(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].ID)
	assert.Equal(t, "m2", recent[1].ID)
}

func TestMongoUserRepository_ObjectIDAndStringIDs(t *testing.T) {
	db := mongoDB(t)
	repo := NewMongoUserRepository(db)
	ctx := context.Background()

	oid := primitive.NewObjectID()
	_, err := db.Collection(usersCollection).InsertMany(ctx, []interface{}{
		bson.M{"_id": oid, "username": "alice", "email": "alice@campus.edu"},
		bson.M{"_id": "u2", "username": "bob", "email": "bob@campus.edu"},
	})
	require.NoError(t, err)

	u, err := repo.GetByID(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, oid.Hex(), u.ID)

	u, err = repo.GetByEmail(ctx, "bob@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)

	users, err := repo.GetByIDs(ctx, []string{oid.Hex(), "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = repo.GetByEmail(ctx, "nobody@campus.edu")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
