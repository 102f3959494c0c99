package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/database"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// GormMemberRepository implements MemberRepository using GORM.
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository creates a new GORM-based member repository.
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	return &GormMemberRepository{db: db}
}

// Create registers a member id.
func (r *GormMemberRepository) Create(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	model := &domain.MemberModel{ID: int64(id)}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.ErrMemberExists
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMemberID, int64(id)).Msg("failed to create member")
		return nil, err
	}
	return model.ToDomain(), nil
}

// Exists reports whether the member is in the directory.
func (r *GormMemberRepository) Exists(ctx context.Context, id domain.MemberID) (bool, error) {
	n, err := r.CountExisting(ctx, []domain.MemberID{id})
	return n == 1, err
}

// CountExisting counts how many of ids are registered.
func (r *GormMemberRepository) CountExisting(ctx context.Context, ids []domain.MemberID) (int, error) {
	return countMembers(r.db.WithContext(ctx), ids)
}

func countMembers(db *gorm.DB, ids []domain.MemberID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	var count int64
	err := db.Model(&domain.MemberModel{}).Where("id IN ?", raw).Count(&count).Error
	return int(count), err
}
