package ez

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"photory/internal/domain"
	resp "photory/internal/transport/http/response"
)

// 上下文中的鉴权信息，由 middleware.AuthJWT 写入
const (
	KeyUserID = "userId"
	KeyRole   = "role"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindForm  Binder = "form"  // multipart/form-data，含文件
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 传输层错误（参数缺失等），业务错误走 domain.Error
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Action 一个接口：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string   // GET / POST / PUT / DELETE
	Path    string   // 例："/rooms/:id/leave"
	Binder  Binder   // 绑定方式
	Auth    bool     // 是否要求登录（检查 userId）
	Roles   []string // 限定角色（可选）
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前分组注册动作接口：鉴权 → 绑定 → 执行 → 统一响应
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth {
			if c.GetString(KeyUserID) == "" {
				Fail(c, domain.ErrUnauthenticated)
				return
			}
			if len(a.Roles) > 0 && !slices.Contains(a.Roles, c.GetString(KeyRole)) {
				Fail(c, Forbidden("forbidden"))
				return
			}
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		case BindForm:
			bindErr = c.ShouldBind(&in)
		default:
		}
		if bindErr != nil {
			Fail(c, &AErr{Code: resp.CodeBadRequest, Msg: bindErr.Error(), Err: bindErr})
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

// Fail 统一错误映射：HTTP 状态与 body.code 一致，业务错误码放在 data.reason
func Fail(c *gin.Context, err error) {
	var ae *AErr
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		status := StatusOf(de.Kind)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.AbortWithStatusJSON(status, resp.ErrorWith(status, de.Msg, gin.H{"reason": de.Code}))
	case errors.As(err, &ae):
		if ae.Err != nil {
			_ = c.Error(ae.Err)
		}
		c.AbortWithStatusJSON(ae.Code, resp.Error(ae.Code, ae.Error()))
	default:
		// 不把存储层细节暴露给客户端，只进访问日志
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, resp.Error(resp.CodeServerError, ""))
	}
}

func StatusOf(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// UserID 当前登录用户
func UserID(c *gin.Context) string { return c.GetString(KeyUserID) }
