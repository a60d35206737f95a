package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"photory/internal/domain"
)

// Store 基于 gorm 的 domain.Store 实现
type Store struct {
	db             *gorm.DB
	users          *UserRepo
	rooms          *RoomRepo
	participations *ParticipationRepo
	feeds          *FeedRepo
	feedImages     *FeedImageRepo
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:             db,
		users:          NewUserRepo(db),
		rooms:          NewRoomRepo(db),
		participations: NewParticipationRepo(db),
		feeds:          NewFeedRepo(db),
		feedImages:     NewFeedImageRepo(db),
	}
}

func (s *Store) Users() domain.UserRepository                   { return s.users }
func (s *Store) Rooms() domain.RoomRepository                   { return s.rooms }
func (s *Store) Participations() domain.ParticipationRepository { return s.participations }
func (s *Store) Feeds() domain.FeedRepository                   { return s.feeds }
func (s *Store) FeedImages() domain.FeedImageRepository         { return s.feedImages }

func (s *Store) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Room{},
		&domain.Participation{},
		&domain.Feed{},
		&domain.FeedImage{},
	}
}

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(Models()...) }

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDupKey(err) {
		return domain.ErrDuplicate
	}
	return err
}

func isDupKey(err error) bool {
	// 未开启 TranslateError 的驱动按报错文本兜底
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
