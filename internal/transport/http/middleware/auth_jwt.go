package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"photory/internal/core/auth"
	"photory/internal/domain"
	"photory/internal/transport/http/ez"
)

// AuthJWT 校验 Bearer token；requireRole 非空时还要求角色匹配
func AuthJWT(j *auth.JWTer, requireRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			ez.Fail(c, domain.ErrUnauthenticated)
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			ez.Fail(c, ez.Unauthorized("invalid token"))
			return
		}
		if requireRole != "" && claims.Role != requireRole {
			ez.Fail(c, ez.Forbidden("forbidden"))
			return
		}
		c.Set("claims", claims)
		c.Set(ez.KeyUserID, claims.UID)
		c.Set(ez.KeyRole, claims.Role)
		c.Next()
	}
}
