package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/audit"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/config"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/hub"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/service"
	"github.com/Sumit-1011/CampusXchange/pkg/idgen"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/middleware"
)

type WSHandler struct {
	hub       *hub.Hub
	service   service.GatewayService
	validator middleware.TokenValidator
	wsCfg     config.WebSocketConfig
	upgrader  websocket.Upgrader
	ctx       context.Context
}

// NewWSHandler creates the socket handler. ctx bounds the lifetime of every
// connection it serves.
func NewWSHandler(ctx context.Context, h *hub.Hub, svc service.GatewayService, validator middleware.TokenValidator, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:       h,
		service:   svc,
		validator: validator,
		wsCfg:     wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
		ctx: ctx,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/socket", h.HandleWebSocket)
	mux.HandleFunc("/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the handshake and upgrades it. The socket
// identity is the userId query parameter, which must match the token's
// subject when tokens are required.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.Ctx(ctx)

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	username := userID
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	}

	switch {
	case token != "":
		identity, err := h.validator.ValidateToken(ctx, token)
		if err != nil || identity.UserID != userID {
			if err == nil {
				err = errors.New("token subject does not match userId")
			}
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("websocket handshake rejected")
			audit.Log(ctx, audit.ActionConnectRejected, userID, "", "websocket handshake rejected")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		username = identity.Username
	case h.wsCfg.RequireToken:
		audit.Log(ctx, audit.ActionConnectRejected, userID, "", "websocket handshake without token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := domain.NewSession(idgen.NewUUID(), userID, username)
	client := hub.NewClient(h.hub, conn, session, h.wsCfg)

	// The request context ends with the handshake; the connection lives on
	// the handler's context with the request-scoped logger carried over.
	connCtx := log.WithLogger(h.ctx, l.With().
		Str(log.FieldConnectionID, session.ID).
		Str(log.FieldUserID, userID).
		Logger())

	h.hub.Register(client)
	h.service.HandleConnect(connCtx, client)

	go client.WritePump()
	go func() {
		client.ReadPump(connCtx, h.handleMessage)
		h.service.HandleDisconnect(connCtx, client)
	}()
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	l := log.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		_ = client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	var err error
	switch base.Type {
	case domain.MsgTypeJoinChat:
		var msg domain.JoinChatMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid joinChat message"))
			return
		}
		err = h.service.HandleJoinChat(ctx, client, msg.ChatID, msg.UserID)

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid sendMessage message"))
			return
		}
		err = h.service.HandleSendMessage(ctx, client, msg.ChatID, msg.SenderID, msg.Text, msg.ClientMessageKey)

	case domain.MsgTypeLeaveChat:
		var msg domain.LeaveChatMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid leaveChat message"))
			return
		}
		err = h.service.HandleLeaveChat(ctx, client, msg.ChatID)

	case domain.MsgTypePing:
		err = h.service.HandlePing(ctx, client)

	default:
		_ = client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
		return
	}

	if err != nil && !errors.Is(err, service.ErrRateLimited) {
		l.Debug().Err(err).Str("frame_type", base.Type).Msg("frame rejected")
	}
}
