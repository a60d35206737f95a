package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"photory/internal/core/auth"
	"photory/internal/core/cache"
	"photory/internal/core/config"
	"photory/internal/core/database"
	"photory/internal/core/storage"
	"photory/internal/domain"
	"photory/internal/repo"
	"photory/internal/repo/memory"
	"photory/internal/service"
	"photory/pkg/utils"
)

// Deps 两个入口共用的依赖
type Deps struct {
	Store   domain.Store
	Objects *storage.Local
	JWTer   *auth.JWTer
	Users   *service.UserService
	Rooms   *service.RoomService
	Feeds   *service.FeedService

	closers []func()
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func Build(cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{
		JWTer: &auth.JWTer{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
		},
	}

	st, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	d.Store = st

	objs, err := storage.NewLocal(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	d.Objects = objs

	var feedCache service.FeedCache
	if cfg.Redis.Addr != "" {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		d.closers = append(d.closers, func() { _ = c.Close() })
		feedCache = cache.NewFeedViews(c, time.Duration(cfg.Redis.FeedTTLSec)*time.Second, log)
		log.Info("feed cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	hasher := utils.BcryptHasher{Cost: cfg.Room.BcryptCost}
	d.Users = service.NewUserService(st.Users(), hasher, log)
	d.Rooms = service.NewRoomService(st, hasher, service.NewCodeGenerator(cfg.Room.CodeMaxAttempts), log)
	d.Feeds = service.NewFeedService(st, objs, feedCache, log)
	return d, nil
}

// OpenStore memory 驱动只用于单进程开发；其余走 gorm
func OpenStore(cfg *config.Config, log *zap.Logger) (domain.Store, error) {
	if cfg.DB.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Logger:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))
	if cfg.DB.AutoMigrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		log.Info("automigrate done")
	}
	return repo.NewStore(db), nil
}
