package domain

import "time"

type RoomView struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Title             string     `json:"title"`
	OwnerID           string     `json:"ownerId"`
	OwnerEmail        string     `json:"ownerEmail"`
	ParticipantsCount int        `json:"participantsCount"`
	Status            RoomStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	ModifiedAt        time.Time  `json:"modifiedAt"`
}

type ParticipantView struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	IsOwner  bool      `json:"isOwner"`
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomDetail struct {
	RoomView
	Participants []ParticipantView `json:"participants"`
}

type FeedView struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	AuthorID   string    `json:"authorId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ImageURLs  []string  `json:"imageUrls"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type DeleteFeedResult struct {
	FeedID       string   `json:"feedId"`
	OrphanedKeys []string `json:"orphanedKeys,omitempty"`
}

// ConsistencyReport 计数器与实际成员行的对账结果
type ConsistencyReport struct {
	RoomID             string `json:"roomId"`
	Counter            int    `json:"counter"`
	Actual             int    `json:"actual"`
	OwnerIsParticipant bool   `json:"ownerIsParticipant"`
	Consistent         bool   `json:"consistent"`
	Repaired           bool   `json:"repaired"`
}
