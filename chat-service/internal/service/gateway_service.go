package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/audit"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/hub"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/ratelimit"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

type gatewayService struct {
	chats       ChatService
	messages    MessageService
	limiter     ratelimit.Limiter
	rooms       RoomRegistry
	broadcaster hub.Broadcaster
}

func NewGatewayService(
	chats ChatService,
	messages MessageService,
	limiter ratelimit.Limiter,
	rooms RoomRegistry,
	broadcaster hub.Broadcaster,
) GatewayService {
	return &gatewayService{
		chats:       chats,
		messages:    messages,
		limiter:     limiter,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
}

func (s *gatewayService) HandleConnect(ctx context.Context, conn Connection) {
	audit.Log(ctx, audit.ActionConnect, conn.Session().UserID, "", "client connected")
}

func (s *gatewayService) HandleJoinChat(ctx context.Context, conn Connection, chatID, userID string) error {
	session := conn.Session()
	if chatID == "" {
		send(ctx, conn, domain.NewErrorMessage(domain.ErrCodeBadRequest, "chatId is required"))
		return ErrMissingChatID
	}
	if userID != "" && userID != session.UserID {
		send(ctx, conn, domain.NewErrorMessage(domain.ErrCodeForbidden, "cannot join on behalf of another user"))
		return ErrIdentityMismatch
	}

	if _, err := s.chats.AuthorizeParticipant(ctx, chatID, session.UserID); err != nil {
		code, msg := joinErrorCode(err)
		send(ctx, conn, domain.NewErrorMessage(code, msg))
		if errors.Is(err, ErrNotParticipant) {
			audit.Log(ctx, audit.ActionJoinDenied, session.UserID, chatID, "join denied")
		}
		return err
	}

	session.JoinRoom(chatID)
	if s.rooms.Join(conn, chatID) {
		audit.Log(ctx, audit.ActionJoinChat, session.UserID, chatID, "joined chat")
	}
	send(ctx, conn, &domain.ChatJoinedMessage{Type: domain.MsgTypeChatJoined, ChatID: chatID})
	return nil
}

// HandleSendMessage runs the send pipeline: validate, rate limit, persist,
// bump the chat, cache, then broadcast to every member of the room, sender included.
func (s *gatewayService) HandleSendMessage(ctx context.Context, conn Connection, chatID, senderID, text, clientMessageKey string) error {
	session := conn.Session()
	ctx = log.With(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(log.FieldChatID, chatID).Str(log.FieldClientKey, clientMessageKey)
	})

	if chatID == "" {
		send(ctx, conn, keyedError(domain.ErrCodeBadRequest, "chatId is required", clientMessageKey))
		return ErrMissingChatID
	}
	if senderID != "" && senderID != session.UserID {
		send(ctx, conn, keyedError(domain.ErrCodeForbidden, "cannot send on behalf of another user", clientMessageKey))
		return ErrIdentityMismatch
	}
	if !session.InRoom(chatID) {
		send(ctx, conn, keyedError(domain.ErrCodeNotInRoom, "join the chat before sending", clientMessageKey))
		return ErrNotInRoom
	}

	text, err := s.messages.ValidateText(text)
	if err != nil {
		sendMessageError(ctx, conn, err, clientMessageKey)
		return err
	}

	// A limiter error has already been logged; the request is allowed.
	allowed, _ := s.limiter.TryConsume(ctx, session.UserID)
	if !allowed {
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldUserID, session.UserID).Msg("message rejected by rate limiter")
		audit.Log(ctx, audit.ActionRateLimited, session.UserID, chatID, "message rate limited")
		send(ctx, conn, domain.NewRateLimitExceeded(chatID, clientMessageKey))
		return ErrRateLimited
	}

	msg, created, err := s.messages.Append(ctx, chatID, session.UserID, text, clientMessageKey)
	if err != nil {
		sendMessageError(ctx, conn, err, clientMessageKey)
		return err
	}

	// A retried key resolves to an older message; only a new one moves the
	// chat's last message forward.
	if created {
		if err := s.chats.TouchLastMessage(ctx, chatID, msg.ID, msg.CreatedAt); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to update chat last message")
		}
		s.messages.CacheAppend(ctx, chatID, msg)
		audit.Log(ctx, audit.ActionSendMessage, session.UserID, msg.ID, "message sent")
	}

	// Duplicates are broadcast again so a retrying sender gets its echo.
	if err := s.broadcaster.Broadcast(ctx, chatID, domain.NewReceiveMessage(msg)); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to broadcast message")
		return err
	}
	return nil
}

func sendMessageError(ctx context.Context, conn Connection, err error, clientMessageKey string) {
	switch {
	case errors.Is(err, ErrEmptyText):
		send(ctx, conn, keyedError(domain.ErrCodeBadRequest, "message text is empty", clientMessageKey))
	case errors.Is(err, ErrTextTooLong):
		send(ctx, conn, keyedError(domain.ErrCodeBadRequest, "message text is too long", clientMessageKey))
	case errors.Is(err, ErrClientKeyReused):
		send(ctx, conn, keyedError(domain.ErrCodeBadRequest, "clientMessageKey already used", clientMessageKey))
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to persist message")
		send(ctx, conn, keyedError(domain.ErrCodePersistFailed, "message could not be saved", clientMessageKey))
	}
}

func (s *gatewayService) HandleLeaveChat(ctx context.Context, conn Connection, chatID string) error {
	session := conn.Session()
	if chatID == "" {
		send(ctx, conn, domain.NewErrorMessage(domain.ErrCodeBadRequest, "chatId is required"))
		return ErrMissingChatID
	}

	session.LeaveRoom(chatID)
	if s.rooms.Leave(conn, chatID) {
		audit.Log(ctx, audit.ActionLeaveChat, session.UserID, chatID, "left chat")
	}
	send(ctx, conn, &domain.ChatLeftMessage{Type: domain.MsgTypeChatLeft, ChatID: chatID})
	return nil
}

func (s *gatewayService) HandlePing(ctx context.Context, conn Connection) error {
	send(ctx, conn, &domain.PongMessage{Type: domain.MsgTypePong})
	return nil
}

// HandleDisconnect clears the session; hub membership is released by the
// connection's read pump.
func (s *gatewayService) HandleDisconnect(ctx context.Context, conn Connection) {
	session := conn.Session()
	for _, roomID := range session.Rooms() {
		session.LeaveRoom(roomID)
	}
	audit.Log(ctx, audit.ActionDisconnect, session.UserID, "", "client disconnected")
}

func joinErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, ErrChatNotFound):
		return domain.ErrCodeNotFound, "chat not found"
	case errors.Is(err, ErrNotParticipant):
		return domain.ErrCodeForbidden, "not a participant of this chat"
	default:
		return domain.ErrCodeInternalError, "could not join chat"
	}
}

func keyedError(code, message, clientMessageKey string) *domain.ErrorMessage {
	e := domain.NewErrorMessage(code, message)
	e.ClientMessageKey = clientMessageKey
	return e
}

// send queues a frame for conn only.
func send(ctx context.Context, conn hub.Conn, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to encode frame")
		return
	}
	if !conn.Send(data) {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldConnectionID, conn.ID()).Msg("frame dropped, connection closed or buffer full")
	}
}
