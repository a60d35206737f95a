package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"photory/internal/core/logger"
	"photory/internal/domain"
	"photory/pkg/utils"
)

// createRoom 在唯一索引拒绝邀请码时的重试次数
const maxCodeInsertRetries = 3

// RoomService 房间成员与房主的状态机。
// 每个变更操作都在一个事务里：先行锁读取房间，再判定，再写入；不跨操作缓存房间状态。
type RoomService struct {
	store  domain.Store
	hasher domain.PasswordHasher
	codes  *CodeGenerator
	log    *zap.Logger
}

func NewRoomService(store domain.Store, hasher domain.PasswordHasher, codes *CodeGenerator, log *zap.Logger) *RoomService {
	if store == nil || hasher == nil {
		panic("room service: store and hasher are required")
	}
	if codes == nil {
		codes = NewCodeGenerator(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomService{store: store, hasher: hasher, codes: codes, log: log.Named("room")}
}

func (s *RoomService) CreateRoom(ctx context.Context, userID, title, password string) (*domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, s.reject(ctx, "create", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}

	for attempt := 0; ; attempt++ {
		code, err := s.codes.Generate(ctx, s.store.Rooms())
		if err != nil {
			logger.Ctx(ctx, s.log).Error("room code generation failed", zap.Error(err))
			return nil, err
		}
		room := &domain.Room{
			ID:                utils.NewID(),
			Code:              code,
			Title:             title,
			PasswordHash:      hash,
			OwnerID:           u.ID,
			ParticipantsCount: 1,
			Status:            domain.RoomActive,
		}
		err = s.store.Transaction(ctx, func(tx domain.Store) error {
			if err := tx.Rooms().Create(ctx, room); err != nil {
				return err
			}
			return tx.Participations().Create(ctx, &domain.Participation{
				ID:     utils.NewID(),
				RoomID: room.ID,
				UserID: u.ID,
			})
		})
		// 并发下预检通过但插入撞码：换一个码重来
		if errors.Is(err, domain.ErrDuplicate) && attempt < maxCodeInsertRetries {
			codeCollisions.Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		roomEvents.WithLabelValues("created").Inc()
		logger.Ctx(ctx, s.log).Info("room created", zap.String("room_id", room.ID), zap.String("owner_id", u.ID), zap.String("code", code))
		v := toRoomView(room, u.Email)
		return &v, nil
	}
}

func (s *RoomService) JoinRoom(ctx context.Context, userID, code, password string) (*domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, s.reject(ctx, "join", err)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	var room *domain.Room
	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		var err error
		room, err = tx.Rooms().LockByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}
		if room == nil {
			return domain.ErrRoomNotFound
		}
		if err := requireActive(room); err != nil {
			return err
		}
		if !s.hasher.Verify(password, room.PasswordHash) {
			return domain.ErrInvalidPassword
		}
		joined, err := IsParticipant(ctx, tx.Participations(), room.ID, u.ID)
		if err != nil {
			return err
		}
		if joined {
			return domain.ErrAlreadyJoined
		}
		if room.ParticipantsCount >= domain.MaxParticipants {
			return domain.ErrRoomAtCapacity
		}
		err = tx.Participations().Create(ctx, &domain.Participation{ID: utils.NewID(), RoomID: room.ID, UserID: u.ID})
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrAlreadyJoined
		}
		if err != nil {
			return fmt.Errorf("create participation: %w", err)
		}
		room.ParticipantsCount++
		return tx.Rooms().Update(ctx, room)
	})
	if err != nil {
		return nil, s.reject(ctx, "join", err)
	}
	roomEvents.WithLabelValues("joined").Inc()
	logger.Ctx(ctx, s.log).Info("room joined", zap.String("room_id", room.ID), zap.String("user_id", u.ID),
		zap.Int("participants", room.ParticipantsCount))
	return s.view(ctx, room)
}

// LeaveRoom 房主不能离开：还有其他人时拒绝，只剩自己时提示改为停用房间（不会自动停用）
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return s.reject(ctx, "leave", err)
	}
	err = s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		if err := requireActive(room); err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, u.ID, domain.ErrNotParticipant); err != nil {
			return err
		}
		if IsOwner(room, u.ID) {
			n, err := tx.Participations().CountByRoom(ctx, room.ID)
			if err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if n > 1 {
				return domain.ErrOwnerCannotLeave
			}
			return domain.ErrOwnerMustDisable
		}
		return s.removeParticipant(ctx, tx, room, u.ID)
	})
	if err != nil {
		return s.reject(ctx, "leave", err)
	}
	roomEvents.WithLabelValues("left").Inc()
	logger.Ctx(ctx, s.log).Info("room left", zap.String("room_id", roomID), zap.String("user_id", u.ID))
	return nil
}

// DisableRoom 仅当房主是唯一成员时可停用；停用不可逆
func (s *RoomService) DisableRoom(ctx context.Context, userID, roomID string) (*domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, s.reject(ctx, "disable", err)
	}
	var out *domain.Room
	err = s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		if err := requireActive(room); err != nil {
			return err
		}
		if err := requireOwner(room, u.ID); err != nil {
			return err
		}
		n, err := tx.Participations().CountByRoom(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if n > 1 {
			return domain.ErrOthersStillPresent
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, u.ID, domain.ErrNotParticipant); err != nil {
			return err
		}
		room.Status = domain.RoomDisabled
		out = room
		return tx.Rooms().Update(ctx, room)
	})
	if err != nil {
		return nil, s.reject(ctx, "disable", err)
	}
	roomEvents.WithLabelValues("disabled").Inc()
	logger.Ctx(ctx, s.log).Info("room disabled", zap.String("room_id", roomID), zap.String("owner_id", u.ID))
	v := toRoomView(out, u.Email)
	return &v, nil
}

func (s *RoomService) ForceRemove(ctx context.Context, userID, roomID, targetUserID string) (*domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, s.reject(ctx, "force_remove", err)
	}
	var out *domain.Room
	err = s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		if err := requireActive(room); err != nil {
			return err
		}
		if err := requireOwner(room, u.ID); err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, u.ID, domain.ErrOwnerNotParticipant); err != nil {
			return err
		}
		if targetUserID == u.ID {
			return domain.ErrCannotRemoveOwner
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, targetUserID, domain.ErrTargetNotParticipant); err != nil {
			return err
		}
		out = room
		return s.removeParticipant(ctx, tx, room, targetUserID)
	})
	if err != nil {
		return nil, s.reject(ctx, "force_remove", err)
	}
	roomEvents.WithLabelValues("removed").Inc()
	logger.Ctx(ctx, s.log).Info("participant removed", zap.String("room_id", roomID), zap.String("owner_id", u.ID),
		zap.String("target_id", targetUserID))
	v := toRoomView(out, u.Email)
	return &v, nil
}

func (s *RoomService) ChangePassword(ctx context.Context, userID, roomID, oldPassword, newPassword string) error {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return s.reject(ctx, "change_password", err)
	}
	err = s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		if err := requireActive(room); err != nil {
			return err
		}
		if err := requireOwner(room, u.ID); err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, u.ID, domain.ErrNotParticipant); err != nil {
			return err
		}
		if !s.hasher.Verify(oldPassword, room.PasswordHash) {
			return domain.ErrInvalidPassword
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("hash room password: %w", err)
		}
		room.PasswordHash = hash
		return tx.Rooms().Update(ctx, room)
	})
	if err != nil {
		return s.reject(ctx, "change_password", err)
	}
	logger.Ctx(ctx, s.log).Info("room password changed", zap.String("room_id", roomID))
	return nil
}

// DelegateOwner 原房主保留成员身份
func (s *RoomService) DelegateOwner(ctx context.Context, userID, roomID, newOwnerID string) (*domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, s.reject(ctx, "delegate", err)
	}
	var out *domain.Room
	err = s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		if err := requireActive(room); err != nil {
			return err
		}
		if err := requireOwner(room, u.ID); err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, u.ID, domain.ErrOwnerNotParticipant); err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx.Participations(), room.ID, newOwnerID, domain.ErrTargetNotParticipant); err != nil {
			return err
		}
		room.OwnerID = newOwnerID
		out = room
		return tx.Rooms().Update(ctx, room)
	})
	if err != nil {
		return nil, s.reject(ctx, "delegate", err)
	}
	roomEvents.WithLabelValues("delegated").Inc()
	logger.Ctx(ctx, s.log).Info("room owner delegated", zap.String("room_id", roomID), zap.String("from", u.ID), zap.String("to", newOwnerID))
	return s.view(ctx, out)
}

// ReleaseUser 封禁前把用户移出所有 Active 房间：
// 是房主且还有其他成员时，房主交给最早加入的成员；只剩自己时停用房间。
func (s *RoomService) ReleaseUser(ctx context.Context, userID string) error {
	parts, err := s.store.Participations().ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list participations: %w", err)
	}
	for _, p := range parts {
		var action, successor string
		err := s.withLockedRoom(ctx, p.RoomID, func(tx domain.Store, room *domain.Room) error {
			if !IsActive(room) {
				return nil
			}
			if !IsOwner(room, userID) {
				action = "left"
				return s.removeParticipant(ctx, tx, room, userID)
			}
			members, err := tx.Participations().ListByRoom(ctx, room.ID)
			if err != nil {
				return fmt.Errorf("list participants: %w", err)
			}
			for _, m := range members {
				if m.UserID != userID {
					successor = m.UserID
					break
				}
			}
			if successor == "" {
				action = "disabled"
				room.Status = domain.RoomDisabled
				return tx.Rooms().Update(ctx, room)
			}
			action = "delegated"
			room.OwnerID = successor
			return s.removeParticipant(ctx, tx, room, userID)
		})
		// 期间已自行离开或房间不存在
		if errors.Is(err, domain.ErrNotParticipant) || errors.Is(err, domain.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("release room %s: %w", p.RoomID, err)
		}
		if action == "" {
			continue
		}
		roomEvents.WithLabelValues("released_" + action).Inc()
		logger.Ctx(ctx, s.log).Warn("room released from user", zap.String("room_id", p.RoomID),
			zap.String("user_id", userID), zap.String("action", action), zap.String("new_owner_id", successor))
	}
	return nil
}

// ListMyRooms 只返回 Active 房间，最新的在前
func (s *RoomService) ListMyRooms(ctx context.Context, userID string) ([]domain.RoomView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	parts, err := s.store.Participations().ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.RoomID)
	}
	rooms, err := s.store.Rooms().FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	emails := map[string]string{}
	out := make([]domain.RoomView, 0, len(rooms))
	for i := range rooms {
		if !IsActive(&rooms[i]) {
			continue
		}
		owner := rooms[i].OwnerID
		if _, ok := emails[owner]; !ok {
			emails[owner] = s.ownerEmail(ctx, owner)
		}
		out = append(out, toRoomView(&rooms[i], emails[owner]))
	}
	return out, nil
}

// GetRoom 仅成员可见，附带成员列表
func (s *RoomService) GetRoom(ctx context.Context, userID, roomID string) (*domain.RoomDetail, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	room, err := findRoom(ctx, s.store.Rooms(), roomID)
	if err != nil {
		return nil, err
	}
	parts, err := s.store.Participations().ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	member := false
	for _, p := range parts {
		if p.UserID == u.ID {
			member = true
			break
		}
	}
	if !member {
		return nil, domain.ErrNotParticipant
	}
	detail := &domain.RoomDetail{Participants: make([]domain.ParticipantView, 0, len(parts))}
	for _, p := range parts {
		pv := domain.ParticipantView{UserID: p.UserID, IsOwner: p.UserID == room.OwnerID, JoinedAt: p.CreatedAt}
		if pu, err := s.store.Users().FindByID(ctx, p.UserID); err == nil && pu != nil {
			pv.Email, pv.Name = pu.Email, pu.Name
		}
		if pv.IsOwner {
			detail.OwnerEmail = pv.Email
		}
		detail.Participants = append(detail.Participants, pv)
	}
	detail.RoomView = toRoomView(room, detail.OwnerEmail)
	return detail, nil
}

// CheckConsistency 对账：计数器 vs 实际成员行，以及房主是否仍是成员
func (s *RoomService) CheckConsistency(ctx context.Context, roomID string) (*domain.ConsistencyReport, error) {
	room, err := findRoom(ctx, s.store.Rooms(), roomID)
	if err != nil {
		return nil, err
	}
	return consistency(ctx, s.store, room)
}

// Reconcile 在房间锁内把计数器改写为实际成员数；房主不在成员中无法自动修复，只记录
func (s *RoomService) Reconcile(ctx context.Context, roomID string) (*domain.ConsistencyReport, error) {
	var rep *domain.ConsistencyReport
	err := s.withLockedRoom(ctx, roomID, func(tx domain.Store, room *domain.Room) error {
		var err error
		rep, err = consistency(ctx, tx, room)
		if err != nil {
			return err
		}
		if IsActive(room) && !rep.OwnerIsParticipant {
			logger.Ctx(ctx, s.log).Error("room owner is not a participant", zap.String("room_id", room.ID), zap.String("owner_id", room.OwnerID))
		}
		if rep.Counter == rep.Actual {
			return nil
		}
		room.ParticipantsCount = rep.Actual
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("update room counter: %w", err)
		}
		rep.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rep.Repaired {
		logger.Ctx(ctx, s.log).Warn("room counter repaired", zap.String("room_id", roomID),
			zap.Int("counter", rep.Counter), zap.Int("actual", rep.Actual))
	}
	return rep, nil
}

func consistency(ctx context.Context, st domain.Store, room *domain.Room) (*domain.ConsistencyReport, error) {
	parts, err := st.Participations().ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	rep := &domain.ConsistencyReport{RoomID: room.ID, Counter: room.ParticipantsCount, Actual: len(parts)}
	for _, p := range parts {
		if p.UserID == room.OwnerID {
			rep.OwnerIsParticipant = true
			break
		}
	}
	rep.Consistent = rep.Counter == rep.Actual && (rep.OwnerIsParticipant || !IsActive(room))
	return rep, nil
}

func (s *RoomService) withLockedRoom(ctx context.Context, roomID string, fn func(tx domain.Store, room *domain.Room) error) error {
	return s.store.Transaction(ctx, func(tx domain.Store) error {
		room, err := tx.Rooms().LockByID(ctx, roomID)
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}
		if room == nil {
			return domain.ErrRoomNotFound
		}
		return fn(tx, room)
	})
}

// removeParticipant 成员行与计数器在同一事务内一起变更
func (s *RoomService) removeParticipant(ctx context.Context, tx domain.Store, room *domain.Room, userID string) error {
	ok, err := tx.Participations().Delete(ctx, room.ID, userID)
	if err != nil {
		return fmt.Errorf("delete participation: %w", err)
	}
	if !ok {
		return domain.ErrNotParticipant
	}
	room.ParticipantsCount--
	return tx.Rooms().Update(ctx, room)
}

func (s *RoomService) view(ctx context.Context, room *domain.Room) (*domain.RoomView, error) {
	v := toRoomView(room, s.ownerEmail(ctx, room.OwnerID))
	return &v, nil
}

func (s *RoomService) ownerEmail(ctx context.Context, ownerID string) string {
	u, err := s.store.Users().FindByID(ctx, ownerID)
	if err != nil || u == nil {
		return ""
	}
	return u.Email
}

// reject 记录业务拒绝；非业务错误原样返回
func (s *RoomService) reject(ctx context.Context, op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		roomRejections.WithLabelValues(op, de.Code).Inc()
		logger.Ctx(ctx, s.log).Debug("room op rejected", zap.String("op", op), zap.String("reason", de.Code))
		return err
	}
	logger.Ctx(ctx, s.log).Error("room op failed", zap.String("op", op), zap.Error(err))
	return err
}

func resolveUser(ctx context.Context, users domain.UserRepository, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	u, err := users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func findRoom(ctx context.Context, rooms domain.RoomRepository, roomID string) (*domain.Room, error) {
	room, err := rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func toRoomView(r *domain.Room, ownerEmail string) domain.RoomView {
	return domain.RoomView{
		ID:                r.ID,
		Code:              r.Code,
		Title:             r.Title,
		OwnerID:           r.OwnerID,
		OwnerEmail:        ownerEmail,
		ParticipantsCount: r.ParticipantsCount,
		Status:            r.Status,
		CreatedAt:         r.CreatedAt,
		ModifiedAt:        r.UpdatedAt,
	}
}
