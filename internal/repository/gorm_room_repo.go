package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/database"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// FindByMemberKey retrieves the room owning the member key.
func (r *GormRoomRepository) FindByMemberKey(ctx context.Context, key string) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).
		Preload("Memberships").
		First(&model, "member_key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Msg("failed to find room by member key")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// CreateWithMembers creates the room and its memberships atomically.
// The unique member_key index is what serialises concurrent creators for
// the same member set: the loser gets ErrRoomExists and nothing is written.
func (r *GormRoomRepository) CreateWithMembers(ctx context.Context, key string, members []domain.MemberID, now time.Time) (*domain.Room, error) {
	l := log.Ctx(ctx)

	model := &domain.RoomModel{
		Kind:        string(domain.KindFor(len(members))),
		MemberKey:   key,
		MemberCount: len(members),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := countMembers(tx, members)
		if err != nil {
			return err
		}
		if found != len(members) {
			return domain.ErrMemberNotFound
		}

		if err := tx.Omit("Memberships").Create(model).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return domain.ErrRoomExists
			}
			return err
		}

		leftAt := now
		memberships := make([]domain.MembershipModel, len(members))
		for i, id := range members {
			memberships[i] = domain.MembershipModel{
				RoomID:     model.ID,
				MemberID:   int64(id),
				LastLeftAt: &leftAt,
			}
		}
		if err := tx.Create(&memberships).Error; err != nil {
			return err
		}
		model.Memberships = memberships
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrMemberNotFound) && !errors.Is(err, domain.ErrRoomExists) {
			l.Error().Err(err).Int("members", len(members)).Msg("failed to create room in db")
		}
		return nil, err
	}

	l.Debug().Int64(log.FieldRoomID, model.ID).Str("kind", model.Kind).Msg("room created in db")
	return model.ToDomain(), nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).
		Preload("Memberships").
		First(&model, "id = ?", int64(id))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldRoomID, int64(id)).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// MemberIDs returns the member set of a room.
func (r *GormRoomRepository) MemberIDs(ctx context.Context, id domain.RoomID) ([]domain.MemberID, error) {
	var raw []int64
	result := r.db.WithContext(ctx).
		Model(&domain.MembershipModel{}).
		Where("room_id = ?", int64(id)).
		Order("member_id").
		Pluck("member_id", &raw)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldRoomID, int64(id)).Msg("failed to load room members")
		return nil, result.Error
	}
	if len(raw) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	ids := make([]domain.MemberID, len(raw))
	for i, v := range raw {
		ids[i] = domain.MemberID(v)
	}
	return ids, nil
}

// ListByMember retrieves every room the member belongs to, newest first.
func (r *GormRoomRepository) ListByMember(ctx context.Context, memberID domain.MemberID) ([]domain.Room, error) {
	var models []domain.RoomModel
	result := r.db.WithContext(ctx).
		Preload("Memberships", func(db *gorm.DB) *gorm.DB {
			return db.Order("member_id")
		}).
		Where("id IN (?)", r.db.Model(&domain.MembershipModel{}).
			Select("room_id").
			Where("member_id = ?", int64(memberID))).
		Order("created_at DESC, id DESC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldMemberID, int64(memberID)).Msg("failed to list member rooms")
		return nil, result.Error
	}

	rooms := make([]domain.Room, len(models))
	for i, model := range models {
		rooms[i] = *model.ToDomain()
	}
	return rooms, nil
}

// MarkLeft moves the read marker of a membership forward.
func (r *GormRoomRepository) MarkLeft(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.MembershipModel{}).
		Where("room_id = ? AND member_id = ?", int64(roomID), int64(memberID)).
		Update("last_left_at", at)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).
			Int64(log.FieldRoomID, int64(roomID)).
			Int64(log.FieldMemberID, int64(memberID)).
			Msg("failed to update read marker")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotRoomMember
	}
	return nil
}
