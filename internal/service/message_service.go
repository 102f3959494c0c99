package service

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
)

type messageServiceImpl struct {
	rooms    repository.RoomRepository
	members  repository.MemberRepository
	messages repository.MessageRepository
}

func NewMessageService(
	rooms repository.RoomRepository,
	members repository.MemberRepository,
	messages repository.MessageRepository,
) MessageService {
	return &messageServiceImpl{
		rooms:    rooms,
		members:  members,
		messages: messages,
	}
}

// ListMessages returns the room history in send order. Only members of the
// room may read it.
func (s *messageServiceImpl) ListMessages(ctx context.Context, caller domain.MemberID, roomID domain.RoomID) ([]domain.Message, error) {
	members, err := s.rooms.MemberIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !containsMember(members, caller) {
		return nil, domain.ErrNotRoomMember
	}

	messages, err := s.messages.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListUnread returns, across all of the member's rooms, the messages from
// others sent after the member last left the room.
func (s *messageServiceImpl) ListUnread(ctx context.Context, memberID domain.MemberID) ([]domain.Message, error) {
	exists, err := s.members.Exists(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrMemberNotFound
	}

	messages, err := s.messages.UnreadByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	return messages, nil
}

func containsMember(ids []domain.MemberID, id domain.MemberID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
