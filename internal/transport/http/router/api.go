package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"photory/internal/core/auth"
	"photory/internal/core/server"
	mdw "photory/internal/transport/http/middleware"
)

type Options struct {
	Mode           string
	MaxConcurrent  int64
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	FilesRoot      string // 非空则在 /files 下提供本地存储的静态文件
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 300
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 32 << 20
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	return o
}

func common(l *zap.Logger, o Options) *gin.Engine {
	r := server.NewRouter(o.Mode)
	r.Use(
		mdw.RequestID(),
		mdw.Recovery(l),
		mdw.ConcurrencyLimit(o.MaxConcurrent),
		mdw.MaxBodyBytes(o.MaxBodyBytes),
		mdw.Timeout(o.RequestTimeout),
		mdw.Metrics("/health", "/metrics"),
		mdw.AccessLog(l),
	)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// NewAPIEngine 用户端：/api/v1 + /files
func NewAPIEngine(l *zap.Logger, jwter *auth.JWTer, o Options, mods ...any) *gin.Engine {
	o = o.withDefaults()
	r := common(l, o)
	if o.FilesRoot != "" {
		r.Static("/files", o.FilesRoot)
	}

	api := r.Group("/api/v1")
	authed := api.Group("")
	authed.Use(mdw.AuthJWT(jwter, ""))

	NewRegistry(mods...).MountAllAPI(api, authed)
	return r
}
