package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// Audit actions for the chat core.
const (
	ActionConnect         = "chat.connect"
	ActionConnectRejected = "chat.connect_rejected"
	ActionSubscribe       = "chat.subscribe"
	ActionUnsubscribe     = "chat.unsubscribe"
	ActionSendMessage     = "chat.send_message"
	ActionDisconnect      = "chat.disconnect"
	ActionRoomCreated     = "room.created"
	ActionMemberCreated   = "member.created"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, memberID domain.MemberID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldMemberID, int64(memberID)).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, memberID domain.MemberID, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldMemberID, int64(memberID)).
		Str(FieldDetail, detail).
		Msg(msg)
}
