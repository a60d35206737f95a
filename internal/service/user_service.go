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

type UserService struct {
	users  domain.UserRepository
	hasher domain.PasswordHasher
	log    *zap.Logger
}

func NewUserService(users domain.UserRepository, hasher domain.PasswordHasher, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, hasher: hasher, log: log.Named("user")}
}

func (s *UserService) Signup(ctx context.Context, email, password, name string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if name == "" {
		if at := strings.IndexByte(email, '@'); at > 0 {
			name = email[:at]
		} else {
			name = "user"
		}
	}
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{ID: utils.NewID(), Email: email, Name: name, PasswordHash: hash, Role: domain.RoleUser}
	if err := s.users.Create(ctx, u); err != nil {
		// 并发注册同一邮箱
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	logger.Ctx(ctx, s.log).Info("user signed up", zap.String("user_id", u.ID))
	return u, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil || !s.hasher.Verify(password, u.PasswordHash) {
		return nil, domain.ErrBadCredentials
	}
	return u, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return resolveUser(ctx, s.users, userID)
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, offset, limit)
}

// GrantAdmin 按邮箱把已注册用户提升为管理员；新 token 才带上新角色
func (s *UserService) GrantAdmin(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	if u.Role == domain.RoleAdmin {
		return u, nil
	}
	ok, err := s.users.SetRole(ctx, u.ID, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = domain.RoleAdmin
	logger.Ctx(ctx, s.log).Warn("admin granted", zap.String("user_id", u.ID))
	return u, nil
}

// Ban 软删除，之后该用户的所有房间/动态操作都解析不到用户
func (s *UserService) Ban(ctx context.Context, userID string) error {
	ok, err := s.users.SoftDelete(ctx, userID)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	logger.Ctx(ctx, s.log).Warn("user banned", zap.String("user_id", userID))
	return nil
}
