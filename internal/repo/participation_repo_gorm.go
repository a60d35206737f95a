package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"photory/internal/domain"
)

type ParticipationRepo struct{ db *gorm.DB }

func NewParticipationRepo(db *gorm.DB) *ParticipationRepo { return &ParticipationRepo{db: db} }

func (r *ParticipationRepo) Create(ctx context.Context, p *domain.Participation) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *ParticipationRepo) Delete(ctx context.Context, roomID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.Participation{})
	return res.RowsAffected > 0, res.Error
}

func (r *ParticipationRepo) Find(ctx context.Context, roomID, userID string) (*domain.Participation, error) {
	var p domain.Participation
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipationRepo) ListByRoom(ctx context.Context, roomID string) ([]domain.Participation, error) {
	var ps []domain.Participation
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at asc").Find(&ps).Error
	return ps, err
}

func (r *ParticipationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Participation, error) {
	var ps []domain.Participation
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&ps).Error
	return ps, err
}

func (r *ParticipationRepo) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Participation{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}
