package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"photory/internal/domain"
)

type FeedRepo struct{ db *gorm.DB }

func NewFeedRepo(db *gorm.DB) *FeedRepo { return &FeedRepo{db: db} }

func (r *FeedRepo) Create(ctx context.Context, f *domain.Feed) error {
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *FeedRepo) Update(ctx context.Context, f *domain.Feed) error {
	return r.db.WithContext(ctx).Model(f).Select("title", "content", "updated_at").Updates(f).Error
}

func (r *FeedRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Feed{}).Error
}

func (r *FeedRepo) FindByID(ctx context.Context, id string) (*domain.Feed, error) {
	var f domain.Feed
	err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FeedRepo) ListByRoom(ctx context.Context, roomID string) ([]domain.Feed, error) {
	var fs []domain.Feed
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at desc").Find(&fs).Error
	return fs, err
}

type FeedImageRepo struct{ db *gorm.DB }

func NewFeedImageRepo(db *gorm.DB) *FeedImageRepo { return &FeedImageRepo{db: db} }

func (r *FeedImageRepo) CreateBatch(ctx context.Context, imgs []domain.FeedImage) error {
	if len(imgs) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&imgs).Error)
}

func (r *FeedImageRepo) ListByFeed(ctx context.Context, feedID string) ([]domain.FeedImage, error) {
	var imgs []domain.FeedImage
	err := r.db.WithContext(ctx).Where("feed_id = ?", feedID).Order("position asc").Find(&imgs).Error
	return imgs, err
}

func (r *FeedImageRepo) DeleteByFeed(ctx context.Context, feedID string) error {
	return r.db.WithContext(ctx).Where("feed_id = ?", feedID).Delete(&domain.FeedImage{}).Error
}
