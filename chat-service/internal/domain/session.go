package domain

import (
	"sync"
	"time"
)

// Session is the state of one authenticated socket.
type Session struct {
	ID           string
	UserID       string
	Username     string
	CreatedAt    time.Time
	LastActiveAt time.Time
	rooms        map[string]struct{}
	mu           sync.RWMutex
}

func NewSession(id, userID, username string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		UserID:       userID,
		Username:     username,
		CreatedAt:    now,
		LastActiveAt: now,
		rooms:        make(map[string]struct{}),
	}
}

// JoinRoom records the room and reports whether it was newly joined.
func (s *Session) JoinRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

// LeaveRoom reports whether the room was joined.
func (s *Session) LeaveRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

func (s *Session) InRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) GetUserID() string {
	return s.UserID
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
