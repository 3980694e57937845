package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/audit"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/service"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/middleware"
	"github.com/Sumit-1011/CampusXchange/pkg/response"
)

// StartChatRequest is the body of POST /api/chat/start-chat.
type StartChatRequest struct {
	User1ID string `json:"user1Id" binding:"required"`
	User2ID string `json:"user2Id" binding:"required"`
}

// Handler handles HTTP requests for chat service.
type Handler struct {
	chatService    service.ChatService
	messageService service.MessageService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(chatService service.ChatService, messageService service.MessageService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		chatService:    chatService,
		messageService: messageService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	chat := r.Group("/api/chat")
	chat.Use(h.authMiddleware.RequireAuth())
	{
		chat.POST("/start-chat", h.StartChat)
		chat.GET("/messages/:chatId", h.GetMessages)
		chat.GET("/contacts", h.GetContacts)
	}
}

func (h *Handler) Health(c *gin.Context) {
	response.OK(c, nil)
}

// StartChat returns the chat between the two users, creating it on first use.
func (h *Handler) StartChat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)

	var req StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind start chat request")
		response.BadRequest(c, "both user1Id and user2Id are required")
		return
	}

	chat, err := h.chatService.StartChat(ctx, userID, req.User1ID, req.User2ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidParticipants):
			response.BadRequest(c, "a chat needs two different users")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "you can only start chats you take part in")
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFound(c, "user not found")
		default:
			l.Error().Err(err).Msg("failed to start chat")
			response.InternalError(c, "could not start or retrieve chat")
		}
		return
	}

	audit.Log(ctx, audit.ActionStartChat, userID, chat.ID, "chat started")
	response.OK(c, gin.H{"chat": chat})
}

// GetMessages returns the newest messages of a chat, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)
	chatID := c.Param("chatId")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := h.chatService.AuthorizeParticipant(ctx, chatID, userID); err != nil {
		switch {
		case errors.Is(err, service.ErrChatNotFound):
			response.NotFound(c, "chat not found")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "not a participant of this chat")
		default:
			l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to authorize chat access")
			response.InternalError(c, "an error occurred while retrieving messages")
		}
		return
	}

	messages, err := h.messageService.RecentMessages(ctx, chatID, limit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to get messages")
		response.InternalError(c, "an error occurred while retrieving messages")
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	response.OK(c, gin.H{"messages": messages, "currentUser": userID})
}

// GetContacts lists the counterpart of each of the caller's chats.
func (h *Handler) GetContacts(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)

	contacts, err := h.chatService.ListContacts(ctx, userID)
	if err != nil {
		l.Error().Err(err).Msg("failed to list contacts")
		response.InternalError(c, "could not fetch contacts")
		return
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}

	response.OK(c, gin.H{"contacts": contacts})
}
