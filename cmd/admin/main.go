package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"photory/internal/app"
	"photory/internal/core/config"
	"photory/internal/core/logger"
	"photory/internal/core/server"
	"photory/internal/transport/http/handler"
	"photory/internal/transport/http/router"
)

func main() {
	grant := pflag.String("grant-admin", "", "promote the user with this email to admin and exit")
	pflag.Parse()

	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.NewWithFile(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File)
	defer cleanup()

	// 内存存储与 api 进程不共享，管理端必须连数据库
	if cfg.DB.Driver == "memory" {
		log.Fatal("admin api requires a database driver, got memory")
	}
	deps, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer deps.Close()

	// 首个管理员只能从这里产生
	if *grant != "" {
		u, err := deps.Users.GrantAdmin(context.Background(), *grant)
		if err != nil {
			log.Fatal("grant admin failed", zap.String("email", *grant), zap.Error(err))
		}
		log.Info("admin granted, sign in again to get an admin token", zap.String("user_id", u.ID), zap.String("email", u.Email))
		return
	}

	r := router.NewAdminEngine(log, deps.JWTer, router.Options{Mode: "release"},
		handler.NewAdminHandler(deps.Users, deps.Rooms),
	)

	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	host4human := cfg.App.Admin.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.Admin.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, srv, log, 10*time.Second); err != nil {
		log.Error("admin api stopped with error", zap.Error(err))
	}
}
