package domain

import (
	"sort"
	"strings"
	"time"
)

// Chat is a one-to-one conversation between two users.
type Chat struct {
	ID              string    `json:"_id"`
	Participants    []string  `json:"participants"`
	ParticipantsKey string    `json:"-"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the chat's members.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the member that is not userID.
func (c *Chat) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// SortedPair returns a and b in ascending order.
func SortedPair(a, b string) [2]string {
	pair := []string{a, b}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}
}

// ParticipantsKey is the order-independent identity of a user pair.
func ParticipantsKey(a, b string) string {
	pair := SortedPair(a, b)
	return strings.Join(pair[:], ":")
}

// Message is a persisted chat message.
type Message struct {
	ID               string    `json:"_id"`
	ChatID           string    `json:"chatId"`
	Sender           string    `json:"sender"`
	Text             string    `json:"text"`
	ClientMessageKey string    `json:"clientMessageKey"`
	CreatedAt        time.Time `json:"createdAt"`
}

// User is the read-only view of an account owned by the user service.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Contact is the other participant of one of the caller's chats.
type Contact struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	ChatID   string `json:"chatId"`
}
