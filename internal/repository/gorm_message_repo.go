package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append persists a message after checking that both the room and the
// sender exist. The generated id is written back into msg.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	model := domain.MessageToModel(msg)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rooms int64
		if err := tx.Model(&domain.RoomModel{}).Where("id = ?", model.RoomID).Count(&rooms).Error; err != nil {
			return err
		}
		if rooms == 0 {
			return domain.ErrRoomNotFound
		}

		found, err := countMembers(tx, []domain.MemberID{msg.SenderID})
		if err != nil {
			return err
		}
		if found == 0 {
			return domain.ErrMemberNotFound
		}

		return tx.Create(model).Error
	})
	if err != nil {
		if !errors.Is(err, domain.ErrRoomNotFound) && !errors.Is(err, domain.ErrMemberNotFound) {
			l.Error().Err(err).Int64(log.FieldRoomID, model.RoomID).Msg("failed to append message")
		}
		return err
	}

	msg.ID = domain.MessageID(model.ID)
	return nil
}

// ListByRoom returns the room history in send order.
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("room_id = ?", int64(roomID)).
		Order("sent_at ASC, id ASC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldRoomID, int64(roomID)).Msg("failed to list room messages")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// LastByRoom returns the most recent message of a room.
func (r *GormMessageRepository) LastByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("room_id = ?", int64(roomID)).
		Order("sent_at DESC, id DESC").
		Take(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldRoomID, int64(roomID)).Msg("failed to get last message")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// UnreadByMember returns messages written by others after the member's
// read marker, across all of the member's rooms.
func (r *GormMessageRepository) UnreadByMember(ctx context.Context, memberID domain.MemberID) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.unreadQuery(ctx, memberID).
		Order("messages.sent_at ASC, messages.id ASC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldMemberID, int64(memberID)).Msg("failed to list unread messages")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// HasUnread reports whether the room has anything unread for the member.
func (r *GormMessageRepository) HasUnread(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID) (bool, error) {
	var count int64
	result := r.unreadQuery(ctx, memberID).
		Where("messages.room_id = ?", int64(roomID)).
		Limit(1).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (r *GormMessageRepository) unreadQuery(ctx context.Context, memberID domain.MemberID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.MessageModel{}).
		Joins("JOIN memberships ON memberships.room_id = messages.room_id").
		Where("memberships.member_id = ?", int64(memberID)).
		Where("messages.sender_id <> ?", int64(memberID)).
		Where("memberships.last_left_at IS NULL OR messages.sent_at > memberships.last_left_at")
}

func toMessages(models []domain.MessageModel) []domain.Message {
	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}
	return messages
}
