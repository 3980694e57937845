package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/cache"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/hub"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/ratelimit"
	"github.com/Sumit-1011/CampusXchange/pkg/idgen"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

type gatewayFixture struct {
	gw       GatewayService
	chats    ChatService
	chatRepo *memChatRepo
	msgRepo  *memMessageRepo
	cache    *cache.RedisRecentCache
	hub      *hub.Hub
	mr       *miniredis.Miniredis
}

func newGatewayFixture(t *testing.T, limit int64) *gatewayFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	ids := idgen.NewULIDGenerator()
	chatRepo := newMemChatRepo()
	msgRepo := newMemMessageRepo()
	recent := cache.NewRedisRecentCache(client, 50, time.Hour)

	chats := NewChatService(chatRepo, newMemUserRepo(alice, bob, carol), ids)
	messages := NewMessageService(msgRepo, recent, ids, DefaultMessageLimits())
	limiter := ratelimit.NewRedisLimiter(client, limit, time.Minute)

	return &gatewayFixture{
		gw:       NewGatewayService(chats, messages, limiter, h, h),
		chats:    chats,
		chatRepo: chatRepo,
		msgRepo:  msgRepo,
		cache:    recent,
		hub:      h,
		mr:       mr,
	}
}

func (f *gatewayFixture) connect(t *testing.T, connID, userID string) *fakeConn {
	t.Helper()
	c := newFakeConn(connID, userID)
	f.hub.Register(c)
	f.gw.HandleConnect(context.Background(), c)
	return c
}

func (f *gatewayFixture) join(t *testing.T, c *fakeConn, chatID string) {
	t.Helper()
	require.NoError(t, f.gw.HandleJoinChat(context.Background(), c, chatID, c.Session().UserID))
	ack := c.next(t)
	require.Equal(t, domain.MsgTypeChatJoined, ack.typ())
	require.Equal(t, chatID, ack.str("chatId"))
}

func TestGateway_BroadcastReachesRoomOnly(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	other, err := f.chats.FindOrCreateChat(ctx, "u1", "u3")
	require.NoError(t, err)

	a := f.connect(t, "conn-a", "u1")
	b := f.connect(t, "conn-b", "u2")
	c := f.connect(t, "conn-c", "u3")
	f.join(t, a, chat.ID)
	f.join(t, b, chat.ID)
	f.join(t, c, other.ID)

	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hello bob", "key-1"))

	fa, fb := a.next(t), b.next(t)
	assert.Equal(t, domain.MsgTypeReceiveMessage, fa.typ())
	assert.JSONEq(t, string(fa.raw), string(fb.raw))
	assert.Equal(t, "hello bob", fa.str("text"))
	assert.Equal(t, "u1", fa.str("sender"))
	assert.Equal(t, "key-1", fa.str("clientMessageKey"))
	assert.NotEmpty(t, fa.str("_id"))
	c.assertNoFrame(t)

	stored, err := f.chatRepo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, fa.str("_id"), stored.LastMessage)
}

func TestGateway_DuplicateSendStoresOnceAndEchoes(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "key-1"))
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "key-1"))

	first, second := a.next(t), a.next(t)
	assert.Equal(t, first.str("_id"), second.str("_id"))
	assert.Equal(t, 1, f.msgRepo.count())

	cached, err := f.cache.Recent(ctx, chat.ID, 50)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestGateway_DuplicateSendKeepsLatestLastMessage(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "first", "key-1"))
	first := a.next(t)
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "second", "key-2"))
	second := a.next(t)
	before, err := f.chatRepo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, second.str("_id"), before.LastMessage)
	updatedAt := before.UpdatedAt

	// A late retry of key-1 is echoed but leaves the chat pointing at key-2.
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "first", "key-1"))
	assert.Equal(t, first.str("_id"), a.next(t).str("_id"))

	after, err := f.chatRepo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, second.str("_id"), after.LastMessage)
	assert.True(t, after.UpdatedAt.Equal(updatedAt))
	assert.Equal(t, 2, f.msgRepo.count())
}

func TestGateway_DuplicateSendLogsClientKeyOnce(t *testing.T) {
	f := newGatewayFixture(t, 5)
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(log.Config{Output: &buf, Level: "debug"}))

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "key-1"))
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "key-1"))

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "duplicate send resolved") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"`+log.FieldClientKey+`"`))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "key-1", entry[log.FieldClientKey])
}

func TestGateway_RateLimitSixthRejected(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	b := f.connect(t, "conn-b", "u2")
	f.join(t, a, chat.ID)
	f.join(t, b, chat.ID)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "msg", fmt.Sprintf("k%d", i)))
		assert.Equal(t, domain.MsgTypeReceiveMessage, a.next(t).typ())
		assert.Equal(t, domain.MsgTypeReceiveMessage, b.next(t).typ())
	}

	err = f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "msg", "k5")
	assert.ErrorIs(t, err, ErrRateLimited)
	rejected := a.next(t)
	assert.Equal(t, domain.MsgTypeRateLimitExceeded, rejected.typ())
	assert.Equal(t, chat.ID, rejected.str("chatId"))
	assert.Equal(t, "k5", rejected.str("clientMessageKey"))
	assert.NotEmpty(t, rejected.str("message"))
	b.assertNoFrame(t)
	assert.Equal(t, 5, f.msgRepo.count())

	f.mr.FastForward(61 * time.Second)

	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "msg", "k6"))
	assert.Equal(t, domain.MsgTypeReceiveMessage, a.next(t).typ())
	assert.Equal(t, 6, f.msgRepo.count())
}

func TestGateway_SixtyMessagesKeepFiftyCached(t *testing.T) {
	f := newGatewayFixture(t, 1000)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	var sent []string
	for i := 0; i < 60; i++ {
		require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", fmt.Sprintf("m%d", i), fmt.Sprintf("k%d", i)))
		sent = append(sent, a.next(t).str("_id"))
	}

	items, err := f.mr.List(f.cache.BuildKey(chat.ID))
	require.NoError(t, err)
	assert.Len(t, items, 50)

	cached, err := f.cache.Recent(ctx, chat.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, sent[10:], messageIDs(cached))
}

func TestGateway_SendRequiresJoinedRoom(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")

	err = f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "k1")
	assert.ErrorIs(t, err, ErrNotInRoom)
	e := a.next(t)
	assert.Equal(t, domain.MsgTypeError, e.typ())
	assert.Equal(t, domain.ErrCodeNotInRoom, e.str("code"))
	assert.Equal(t, "k1", e.str("clientMessageKey"))
	assert.Equal(t, 0, f.msgRepo.count())
}

func TestGateway_SendValidation(t *testing.T) {
	f := newGatewayFixture(t, 100)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	tests := []struct {
		name     string
		chatID   string
		sender   string
		text     string
		wantErr  error
		wantCode string
	}{
		{name: "missing chat", chatID: "", sender: "u1", text: "hi", wantErr: ErrMissingChatID, wantCode: domain.ErrCodeBadRequest},
		{name: "impersonation", chatID: chat.ID, sender: "u2", text: "hi", wantErr: ErrIdentityMismatch, wantCode: domain.ErrCodeForbidden},
		{name: "empty text", chatID: chat.ID, sender: "u1", text: "  ", wantErr: ErrEmptyText, wantCode: domain.ErrCodeBadRequest},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.gw.HandleSendMessage(ctx, a, tt.chatID, tt.sender, tt.text, fmt.Sprintf("k%d", i))
			assert.ErrorIs(t, err, tt.wantErr)
			e := a.next(t)
			assert.Equal(t, domain.MsgTypeError, e.typ())
			assert.Equal(t, tt.wantCode, e.str("code"))
		})
	}
}

func TestGateway_InvalidTextDoesNotConsumeRateLimit(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	for i := 0; i < 5; i++ {
		err := f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", " \t ", fmt.Sprintf("blank-%d", i))
		assert.ErrorIs(t, err, ErrEmptyText)
		e := a.next(t)
		assert.Equal(t, domain.MsgTypeError, e.typ())
		assert.Equal(t, domain.ErrCodeBadRequest, e.str("code"))
		assert.Equal(t, fmt.Sprintf("blank-%d", i), e.str("clientMessageKey"))
	}
	err = f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", strings.Repeat("x", 2001), "long")
	assert.ErrorIs(t, err, ErrTextTooLong)
	assert.Equal(t, domain.ErrCodeBadRequest, a.next(t).str("code"))

	// The whole window is still available for real messages.
	for i := 0; i < 5; i++ {
		require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "  hi  ", fmt.Sprintf("k%d", i)))
		got := a.next(t)
		assert.Equal(t, domain.MsgTypeReceiveMessage, got.typ())
		assert.Equal(t, "hi", got.str("text"))
	}
	assert.Equal(t, 5, f.msgRepo.count())
}

func TestGateway_PersistFailureNotBroadcast(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	b := f.connect(t, "conn-b", "u2")
	f.join(t, a, chat.ID)
	f.join(t, b, chat.ID)

	f.msgRepo.createErr = errors.New("store down")
	err = f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "k1")
	assert.Error(t, err)

	e := a.next(t)
	assert.Equal(t, domain.MsgTypeError, e.typ())
	assert.Equal(t, domain.ErrCodePersistFailed, e.str("code"))
	b.assertNoFrame(t)
}

func TestGateway_TouchFailureStillBroadcasts(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	f.chatRepo.touchErr = errors.New("store down")
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "k1"))
	assert.Equal(t, domain.MsgTypeReceiveMessage, a.next(t).typ())
}

func TestGateway_RateLimiterOutageFailsOpen(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	f.mr.Close()
	require.NoError(t, f.gw.HandleSendMessage(ctx, a, chat.ID, "u1", "hi", "k1"))
	assert.Equal(t, domain.MsgTypeReceiveMessage, a.next(t).typ())
	assert.Equal(t, 1, f.msgRepo.count())
}

func TestGateway_JoinAuthorization(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	outsider := f.connect(t, "conn-c", "u3")

	err = f.gw.HandleJoinChat(ctx, outsider, chat.ID, "u3")
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, domain.ErrCodeForbidden, outsider.next(t).str("code"))

	err = f.gw.HandleJoinChat(ctx, outsider, "missing", "u3")
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Equal(t, domain.ErrCodeNotFound, outsider.next(t).str("code"))

	err = f.gw.HandleJoinChat(ctx, outsider, chat.ID, "u1")
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, domain.ErrCodeForbidden, outsider.next(t).str("code"))

	assert.Equal(t, 0, f.hub.RoomSize(chat.ID))
}

func TestGateway_JoinIsIdempotentAndLeave(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")

	f.join(t, a, chat.ID)
	f.join(t, a, chat.ID)
	assert.Equal(t, 1, f.hub.RoomSize(chat.ID))

	require.NoError(t, f.gw.HandleLeaveChat(ctx, a, chat.ID))
	assert.Equal(t, domain.MsgTypeChatLeft, a.next(t).typ())
	assert.Equal(t, 0, f.hub.RoomSize(chat.ID))
	assert.False(t, a.Session().InRoom(chat.ID))

	require.NoError(t, f.gw.HandlePing(ctx, a))
	assert.Equal(t, domain.MsgTypePong, a.next(t).typ())
}

func TestGateway_DisconnectClearsSession(t *testing.T) {
	f := newGatewayFixture(t, 5)
	ctx := context.Background()

	chat, err := f.chats.FindOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	a := f.connect(t, "conn-a", "u1")
	f.join(t, a, chat.ID)

	f.gw.HandleDisconnect(ctx, a)
	f.hub.Unregister(a)

	assert.Empty(t, a.Session().Rooms())
	require.Eventually(t, func() bool { return f.hub.RoomSize(chat.ID) == 0 }, time.Second, 10*time.Millisecond)
}
