package service

import (
	"context"
	"fmt"

	"photory/internal/domain"
)

// 授权判定集中在这里，房间与动态两个服务共用。身份比较一律按 ID。

func IsOwner(room *domain.Room, userID string) bool {
	return room != nil && userID != "" && room.OwnerID == userID
}

func IsActive(room *domain.Room) bool {
	return room != nil && room.Status == domain.RoomActive
}

func IsParticipant(ctx context.Context, parts domain.ParticipationRepository, roomID, userID string) (bool, error) {
	p, err := parts.Find(ctx, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("find participation: %w", err)
	}
	return p != nil, nil
}

func requireActive(room *domain.Room) error {
	if !IsActive(room) {
		return domain.ErrRoomDisabled
	}
	return nil
}

func requireOwner(room *domain.Room, userID string) error {
	if !IsOwner(room, userID) {
		return domain.ErrNotOwner
	}
	return nil
}

// requireParticipant 不是成员时返回 denied
func requireParticipant(ctx context.Context, parts domain.ParticipationRepository, roomID, userID string, denied error) error {
	ok, err := IsParticipant(ctx, parts, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}
