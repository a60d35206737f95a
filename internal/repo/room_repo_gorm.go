package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"photory/internal/domain"
)

type RoomRepo struct{ db *gorm.DB }

func NewRoomRepo(db *gorm.DB) *RoomRepo { return &RoomRepo{db: db} }

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	return translate(r.db.WithContext(ctx).Create(room).Error)
}

// Update 只写可变列，避免覆盖 code/created_at
func (r *RoomRepo) Update(ctx context.Context, room *domain.Room) error {
	return r.db.WithContext(ctx).Model(room).Select(
		"title", "password_hash", "owner_id", "participants_count", "status", "updated_at",
	).Updates(room).Error
}

func (r *RoomRepo) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *RoomRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.Room, error) {
	var rooms []domain.Room
	if len(ids) == 0 {
		return rooms, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at desc").Find(&rooms).Error
	return rooms, err
}

// LockByID SELECT ... FOR UPDATE（sqlite 驱动会忽略锁子句，靠库级写锁串行化）
func (r *RoomRepo) LockByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *RoomRepo) LockByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "code = ?", code)
}

// ExistsCode 走 code 唯一索引，包含已停用房间
func (r *RoomRepo) ExistsCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *RoomRepo) first(q *gorm.DB, cond string, arg any) (*domain.Room, error) {
	var room domain.Room
	err := q.Where(cond, arg).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}
