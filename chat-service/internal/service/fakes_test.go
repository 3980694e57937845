package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
)

type memChatRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.Chat
	byKey    map[string]string
	onCreate func(chat *domain.Chat)
	touchErr error
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{byID: make(map[string]*domain.Chat), byKey: make(map[string]string)}
}

func (r *memChatRepo) Create(_ context.Context, chat *domain.Chat) error {
	if r.onCreate != nil {
		r.onCreate(chat)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[chat.ParticipantsKey]; ok {
		return repository.ErrDuplicateChat
	}
	c := *chat
	r.byID[c.ID] = &c
	r.byKey[c.ParticipantsKey] = c.ID
	return nil
}

func (r *memChatRepo) insert(chat *domain.Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *chat
	r.byID[c.ID] = &c
	r.byKey[c.ParticipantsKey] = c.ID
}

func (r *memChatRepo) GetByID(_ context.Context, id string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memChatRepo) GetByParticipantsKey(ctx context.Context, key string) (*domain.Chat, error) {
	r.mu.Lock()
	id, ok := r.byKey[key]
	r.mu.Unlock()
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memChatRepo) ListByParticipant(_ context.Context, userID string) ([]*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Chat
	for _, c := range r.byID {
		if c.HasParticipant(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memChatRepo) UpdateLastMessage(_ context.Context, chatID, messageID string, at time.Time) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[chatID]
	if !ok {
		return repository.ErrChatNotFound
	}
	c.LastMessage = messageID
	c.UpdatedAt = at
	return nil
}

func (r *memChatRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memMessageRepo struct {
	mu        sync.Mutex
	byKey     map[string]*domain.Message
	createErr error
	listErr   error
	listCalls int
	// listGate, when set, holds ListRecent until closed or ctx is done.
	listGate    chan struct{}
	listStarted chan struct{}
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{byKey: make(map[string]*domain.Message)}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.byKey[msg.ClientMessageKey]; ok {
		return repository.ErrDuplicateMessage
	}
	m := *msg
	r.byKey[m.ClientMessageKey] = &m
	return nil
}

func (r *memMessageRepo) GetByClientKey(_ context.Context, key string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byKey[key]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	r.listCalls++
	gate, started := r.listGate, r.listStarted
	r.mu.Unlock()

	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Message
	for _, m := range r.byKey {
		if m.ChatID == chatID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

func (r *memMessageRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

type memUserRepo struct {
	users map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) GetByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// fakeConn is an in-memory socket that records queued frames.
type fakeConn struct {
	session *domain.Session
	frames  chan []byte
	mu      sync.Mutex
	closed  bool
}

func newFakeConn(connID, userID string) *fakeConn {
	return &fakeConn{
		session: domain.NewSession(connID, userID, userID),
		frames:  make(chan []byte, 256),
	}
}

func (f *fakeConn) ID() string { return f.session.ID }

func (f *fakeConn) Session() *domain.Session { return f.session }

func (f *fakeConn) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.frames <- data:
		return true
	default:
		return false
	}
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type frame struct {
	raw  []byte
	body map[string]interface{}
}

func (f frame) typ() string { return f.str("type") }

func (f frame) str(k string) string {
	s, _ := f.body[k].(string)
	return s
}

func (f *fakeConn) next(t *testing.T) frame {
	t.Helper()
	select {
	case data := <-f.frames:
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &body))
		return frame{raw: data, body: body}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no frame received", f.ID())
		return frame{}
	}
}

func (f *fakeConn) assertNoFrame(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.frames:
		t.Fatalf("%s: unexpected frame %s", f.ID(), data)
	case <-time.After(100 * time.Millisecond):
	}
}
