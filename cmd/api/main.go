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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"photory/internal/app"
	"photory/internal/core/config"
	"photory/internal/core/logger"
	"photory/internal/core/server"
	"photory/internal/transport/http/handler"
	"photory/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.NewWithFile(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File)
	defer cleanup()
	defer logger.RedirectStdLog(log, zapcore.InfoLevel)()

	deps, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer deps.Close()

	mode := "release"
	if cfg.App.Env == "local" || cfg.App.Env == "dev" {
		mode = "debug"
	}
	r := router.NewAPIEngine(log, deps.JWTer, router.Options{Mode: mode, FilesRoot: cfg.Storage.Root},
		handler.NewAuthHandler(deps.Users, deps.JWTer),
		handler.NewRoomHandler(deps.Rooms),
		handler.NewFeedHandler(deps.Feeds),
	)

	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	log.Info("user api starting",
		zap.String("addr", addr),
		zap.String("health", baseURL+"/health"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, srv, log, 10*time.Second); err != nil {
		log.Error("user api stopped with error", zap.Error(err))
	}
}
