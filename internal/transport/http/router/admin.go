package router

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"photory/internal/core/auth"
	"photory/internal/domain"
	mdw "photory/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：/admin/v1 统一要求 admin 角色
func NewAdminEngine(l *zap.Logger, jwter *auth.JWTer, o Options, mods ...any) *gin.Engine {
	o = o.withDefaults()
	r := common(l, o)

	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(jwter, domain.RoleAdmin))

	NewRegistry(mods...).MountAllAdmin(admin)
	return r
}
