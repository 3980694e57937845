package audit

import (
	"context"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// Audit actions for chat-service.
const (
	ActionConnect         = "chat.connect"
	ActionConnectRejected = "chat.connect_rejected"
	ActionStartChat       = "chat.start_chat"
	ActionJoinChat        = "chat.join_chat"
	ActionJoinDenied      = "chat.join_denied"
	ActionLeaveChat       = "chat.leave_chat"
	ActionSendMessage     = "chat.send_message"
	ActionRateLimited     = "chat.rate_limited"
	ActionDisconnect      = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
)

// Log emits a structured audit entry via the context logger. targetID is
// the chat or message the action applies to and may be empty.
func Log(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	e := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
	if targetID != "" {
		e = e.Str(FieldTargetID, targetID)
	}
	e.Msg(msg)
}
