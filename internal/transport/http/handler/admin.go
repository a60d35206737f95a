package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photory/internal/domain"
	"photory/internal/service"
	"photory/internal/transport/http/ez"
)

// AdminHandler 用户管理与房间计数对账
type AdminHandler struct {
	users *service.UserService
	rooms *service.RoomService
}

func NewAdminHandler(users *service.UserService, rooms *service.RoomService) *AdminHandler {
	return &AdminHandler{users: users, rooms: rooms}
}

func (h *AdminHandler) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)

	type listQ struct {
		Offset int `form:"offset,default=0"`
		Limit  int `form:"limit,default=20"`
	}
	type listOut struct {
		Total int64     `json:"total"`
		Items []userOut `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[listQ, listOut]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listQ) (listOut, error) {
			us, total, err := h.users.List(c.Request.Context(), in.Offset, in.Limit)
			if err != nil {
				return listOut{}, err
			}
			out := listOut{Total: total, Items: make([]userOut, 0, len(us))}
			for i := range us {
				out.Items = append(out.Items, toUserOut(&us[i]))
			}
			return out, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/users/:id/ban",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			ctx, id := c.Request.Context(), c.Param("id")
			if _, err := h.users.Me(ctx, id); err != nil {
				return nil, err
			}
			// 先交出房间，否则被封禁房主的房间无人能管理
			if err := h.rooms.ReleaseUser(ctx, id); err != nil {
				return nil, err
			}
			if err := h.users.Ban(ctx, id); err != nil {
				return nil, err
			}
			return gin.H{"id": id}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.ConsistencyReport]{
		Method: http.MethodGet,
		Path:   "/rooms/:id/consistency",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.ConsistencyReport, error) {
			return h.rooms.CheckConsistency(c.Request.Context(), c.Param("id"))
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.ConsistencyReport]{
		Method: http.MethodPost,
		Path:   "/rooms/:id/reconcile",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.ConsistencyReport, error) {
			return h.rooms.Reconcile(c.Request.Context(), c.Param("id"))
		},
	})
}
