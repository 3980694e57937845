package domain

import "time"

// ChatModel is the GORM model for chats table.
type ChatModel struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	ParticipantA    string    `gorm:"type:varchar(64);index;not null"`
	ParticipantB    string    `gorm:"type:varchar(64);index;not null"`
	ParticipantsKey string    `gorm:"type:varchar(130);uniqueIndex;not null"`
	LastMessage     string    `gorm:"type:varchar(36)"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"index"`
}

// TableName specifies the table name for ChatModel.
func (ChatModel) TableName() string {
	return "chats"
}

// ToDomain converts ChatModel to domain Chat.
func (m *ChatModel) ToDomain() *Chat {
	return &Chat{
		ID:              m.ID,
		Participants:    []string{m.ParticipantA, m.ParticipantB},
		ParticipantsKey: m.ParticipantsKey,
		LastMessage:     m.LastMessage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ChatToModel converts domain Chat to ChatModel.
func ChatToModel(c *Chat) *ChatModel {
	m := &ChatModel{
		ID:              c.ID,
		ParticipantsKey: c.ParticipantsKey,
		LastMessage:     c.LastMessage,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if len(c.Participants) == 2 {
		m.ParticipantA, m.ParticipantB = c.Participants[0], c.Participants[1]
	}
	return m
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID               string    `gorm:"type:varchar(36);primaryKey"`
	ChatID           string    `gorm:"type:varchar(36);index:idx_messages_chat_created,priority:1;not null"`
	Sender           string    `gorm:"type:varchar(64);not null"`
	Text             string    `gorm:"type:text;not null"`
	ClientMessageKey string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	CreatedAt        time.Time `gorm:"index:idx_messages_chat_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:               m.ID,
		ChatID:           m.ChatID,
		Sender:           m.Sender,
		Text:             m.Text,
		ClientMessageKey: m.ClientMessageKey,
		CreatedAt:        m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:               msg.ID,
		ChatID:           msg.ChatID,
		Sender:           msg.Sender,
		Text:             msg.Text,
		ClientMessageKey: msg.ClientMessageKey,
		CreatedAt:        msg.CreatedAt,
	}
}

// UserModel is the GORM model for the users table shared with the
// user service. This service only reads it.
type UserModel struct {
	ID       string `gorm:"type:varchar(64);primaryKey"`
	Username string `gorm:"type:varchar(50);not null"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{ID: m.ID, Username: m.Username, Email: m.Email}
}
