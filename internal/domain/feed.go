package domain

import (
	"io"
	"time"
)

type Feed struct {
	ID        string `gorm:"primaryKey;size:36"`
	RoomID    string `gorm:"size:36;not null;index"`
	AuthorID  string `gorm:"size:36;not null;index"`
	Title     string `gorm:"size:100;not null"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Feed) TableName() string { return "feeds" }

type FeedImage struct {
	ID         string `gorm:"primaryKey;size:36"`
	FeedID     string `gorm:"size:36;not null;index"`
	Position   int    `gorm:"not null"`
	URL        string `gorm:"size:512;not null"`
	StorageKey string `gorm:"size:255;not null"`
	CreatedAt  time.Time
}

func (FeedImage) TableName() string { return "feed_images" }

// Upload 待上传到对象存储的单个文件
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type StoredObject struct {
	Key string
	URL string
}
