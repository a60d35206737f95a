package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photory/internal/core/auth"
	"photory/internal/domain"
	"photory/internal/service"
	"photory/internal/transport/http/ez"
)

type userOut struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func toUserOut(u *domain.User) userOut {
	return userOut{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

type tokenOut struct {
	Token string  `json:"token"`
	User  userOut `json:"user"`
}

// AuthHandler 注册 / 登录 / 当前用户
type AuthHandler struct {
	users *service.UserService
	jwter *auth.JWTer
}

func NewAuthHandler(users *service.UserService, jwter *auth.JWTer) *AuthHandler {
	return &AuthHandler{users: users, jwter: jwter}
}

func (h *AuthHandler) Priority() int { return 10 }

func (h *AuthHandler) MountAPI(pub, authed *gin.RouterGroup) {
	type signupIn struct {
		Email    string `json:"email"    binding:"required,email,max=191"`
		Password string `json:"password" binding:"required,min=6,max=72"`
		Name     string `json:"name"     binding:"omitempty,max=64"`
	}
	ez.RegisterAction(ez.New(pub), ez.Action[signupIn, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *signupIn) (tokenOut, error) {
			u, err := h.users.Signup(c.Request.Context(), in.Email, in.Password, in.Name)
			if err != nil {
				return tokenOut{}, err
			}
			return h.issue(u)
		},
	})

	type loginIn struct {
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	ez.RegisterAction(ez.New(pub), ez.Action[loginIn, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (tokenOut, error) {
			u, err := h.users.Authenticate(c.Request.Context(), in.Email, in.Password)
			if err != nil {
				return tokenOut{}, err
			}
			return h.issue(u)
		},
	})

	ez.RegisterAction(ez.New(authed), ez.Action[struct{}, userOut]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (userOut, error) {
			u, err := h.users.Me(c.Request.Context(), ez.UserID(c))
			if err != nil {
				return userOut{}, err
			}
			return toUserOut(u), nil
		},
	})
}

func (h *AuthHandler) issue(u *domain.User) (tokenOut, error) {
	tok, err := h.jwter.Issue(u.ID, u.Role)
	if err != nil {
		return tokenOut{}, ez.Internal("issue token failed", err)
	}
	return tokenOut{Token: tok, User: toUserOut(u)}, nil
}
