package repository

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

// MemberRepository is the member directory.
type MemberRepository interface {
	Create(ctx context.Context, id domain.MemberID) (*domain.Member, error)
	Exists(ctx context.Context, id domain.MemberID) (bool, error)
	// CountExisting returns how many of ids exist in the directory.
	CountExisting(ctx context.Context, ids []domain.MemberID) (int, error)
}

// RoomRepository persists rooms and their memberships.
type RoomRepository interface {
	// FindByMemberKey returns the room whose member set hashes to key.
	FindByMemberKey(ctx context.Context, key string) (*domain.Room, error)
	// CreateWithMembers creates the room and one membership per member in a
	// single transaction. ErrMemberNotFound if any member is unknown,
	// ErrRoomExists if another room already owns key.
	CreateWithMembers(ctx context.Context, key string, members []domain.MemberID, now time.Time) (*domain.Room, error)
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	MemberIDs(ctx context.Context, id domain.RoomID) ([]domain.MemberID, error)
	ListByMember(ctx context.Context, memberID domain.MemberID) ([]domain.Room, error)
	// MarkLeft moves the member's read marker in the room to at.
	MarkLeft(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID, at time.Time) error
}

// MessageRepository is the message store gateway.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	ListByRoom(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error)
	LastByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Message, error)
	UnreadByMember(ctx context.Context, memberID domain.MemberID) ([]domain.Message, error)
	HasUnread(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID) (bool, error)
}
