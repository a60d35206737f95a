package domain

import "context"

// 约定：单条查询未找到时返回 (nil, nil)；唯一约束冲突返回 ErrDuplicate。

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]User, int64, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	SetRole(ctx context.Context, id, role string) (bool, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	Update(ctx context.Context, r *Room) error
	FindByID(ctx context.Context, id string) (*Room, error)
	FindByIDs(ctx context.Context, ids []string) ([]Room, error)
	// LockByID / LockByCode 在事务内加行锁读取，同一房间的变更由此串行化
	LockByID(ctx context.Context, id string) (*Room, error)
	LockByCode(ctx context.Context, code string) (*Room, error)
	ExistsCode(ctx context.Context, code string) (bool, error)
}

type ParticipationRepository interface {
	Create(ctx context.Context, p *Participation) error
	Delete(ctx context.Context, roomID, userID string) (bool, error)
	Find(ctx context.Context, roomID, userID string) (*Participation, error)
	ListByRoom(ctx context.Context, roomID string) ([]Participation, error)
	ListByUser(ctx context.Context, userID string) ([]Participation, error)
	CountByRoom(ctx context.Context, roomID string) (int64, error)
}

type FeedRepository interface {
	Create(ctx context.Context, f *Feed) error
	Update(ctx context.Context, f *Feed) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Feed, error)
	ListByRoom(ctx context.Context, roomID string) ([]Feed, error)
}

type FeedImageRepository interface {
	CreateBatch(ctx context.Context, imgs []FeedImage) error
	ListByFeed(ctx context.Context, feedID string) ([]FeedImage, error)
	DeleteByFeed(ctx context.Context, feedID string) error
}

// Store 成员关系的唯一权威来源
type Store interface {
	Users() UserRepository
	Rooms() RoomRepository
	Participations() ParticipationRepository
	Feeds() FeedRepository
	FeedImages() FeedImageRepository
	// Transaction fn 返回错误时整体回滚
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type ObjectStorage interface {
	Upload(ctx context.Context, files []Upload) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}
