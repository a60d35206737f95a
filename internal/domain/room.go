package domain

import "time"

// MaxParticipants 单个房间的人数上限（含房主）
const MaxParticipants = 8

type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomDisabled RoomStatus = "disabled" // 终态，不可恢复
)

type Room struct {
	ID                string     `gorm:"primaryKey;size:36"`
	Code              string     `gorm:"uniqueIndex;size:8;not null"`
	Title             string     `gorm:"size:100;not null"`
	PasswordHash      string     `gorm:"size:100;not null"`
	OwnerID           string     `gorm:"index;size:36;not null"`
	ParticipantsCount int        `gorm:"not null"`
	Status            RoomStatus `gorm:"size:16;not null;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Room) TableName() string { return "rooms" }

// Participation 房间成员关系，(room_id, user_id) 唯一
type Participation struct {
	ID        string `gorm:"primaryKey;size:36"`
	RoomID    string `gorm:"size:36;not null;uniqueIndex:uniq_participation_room_user"`
	UserID    string `gorm:"size:36;not null;uniqueIndex:uniq_participation_room_user;index"`
	CreatedAt time.Time
}

func (Participation) TableName() string { return "participations" }
