package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
)

type RoomService interface {
	// ResolveOrCreateRoom returns the one room whose member set is exactly
	// memberIDs, creating it on first use. The read status is computed for
	// viewer; a zero viewer reads as ALL_READ.
	ResolveOrCreateRoom(ctx context.Context, viewer domain.MemberID, memberIDs []domain.MemberID) (*domain.RoomSummary, error)
	ListRoomsForMember(ctx context.Context, memberID domain.MemberID) ([]domain.RoomSummary, error)
}

type MessageService interface {
	ListMessages(ctx context.Context, caller domain.MemberID, roomID domain.RoomID) ([]domain.Message, error)
	ListUnread(ctx context.Context, memberID domain.MemberID) ([]domain.Message, error)
}

type MemberService interface {
	Register(ctx context.Context, id domain.MemberID) (*domain.Member, error)
	OnlineStatus(ctx context.Context, id domain.MemberID) (*domain.OnlineStatus, error)
}

type TokenService interface {
	Issue(ctx context.Context, memberID domain.MemberID) (*jwt.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error)
}

// ChatService drives the lifecycle of live connections.
type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client, frame *domain.Frame) error
	HandleSubscribe(ctx context.Context, client *hub.Client, frame *domain.Frame) error
	HandleUnsubscribe(ctx context.Context, client *hub.Client, frame *domain.Frame) error
	HandleMessage(ctx context.Context, client *hub.Client, frame *domain.Frame) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
	Start(ctx context.Context) error
	Stop() error
}
