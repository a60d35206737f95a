package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photory/internal/domain"
	"photory/internal/service"
	"photory/internal/transport/http/ez"
)

type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) MountAPI(_, authed *gin.RouterGroup) {
	e := ez.New(authed)

	type createIn struct {
		Title    string `json:"title"    binding:"required,max=100"`
		Password string `json:"password" binding:"required,max=72"`
	}
	ez.RegisterAction(e, ez.Action[createIn, *domain.RoomView]{
		Method: http.MethodPost,
		Path:   "/rooms",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *createIn) (*domain.RoomView, error) {
			return h.rooms.CreateRoom(c.Request.Context(), ez.UserID(c), in.Title, in.Password)
		},
	})

	type joinIn struct {
		Code     string `json:"code"     binding:"required,max=16"`
		Password string `json:"password" binding:"required"`
	}
	ez.RegisterAction(e, ez.Action[joinIn, *domain.RoomView]{
		Method: http.MethodPost,
		Path:   "/rooms/join",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *joinIn) (*domain.RoomView, error) {
			return h.rooms.JoinRoom(c.Request.Context(), ez.UserID(c), in.Code, in.Password)
		},
	})

	type listOut struct {
		Items []domain.RoomView `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[struct{}, listOut]{
		Method: http.MethodGet,
		Path:   "/rooms",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (listOut, error) {
			rooms, err := h.rooms.ListMyRooms(c.Request.Context(), ez.UserID(c))
			return listOut{Items: rooms}, err
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.RoomDetail]{
		Method: http.MethodGet,
		Path:   "/rooms/:id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.RoomDetail, error) {
			return h.rooms.GetRoom(c.Request.Context(), ez.UserID(c), c.Param("id"))
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/rooms/:id/leave",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := c.Param("id")
			if err := h.rooms.LeaveRoom(c.Request.Context(), ez.UserID(c), id); err != nil {
				return nil, err
			}
			return gin.H{"roomId": id}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.RoomView]{
		Method: http.MethodPost,
		Path:   "/rooms/:id/disable",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.RoomView, error) {
			return h.rooms.DisableRoom(c.Request.Context(), ez.UserID(c), c.Param("id"))
		},
	})

	type targetIn struct {
		UserID string `json:"userId" binding:"required"`
	}
	ez.RegisterAction(e, ez.Action[targetIn, *domain.RoomView]{
		Method: http.MethodPost,
		Path:   "/rooms/:id/kick",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *targetIn) (*domain.RoomView, error) {
			return h.rooms.ForceRemove(c.Request.Context(), ez.UserID(c), c.Param("id"), in.UserID)
		},
	})

	ez.RegisterAction(e, ez.Action[targetIn, *domain.RoomView]{
		Method: http.MethodPut,
		Path:   "/rooms/:id/owner",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *targetIn) (*domain.RoomView, error) {
			return h.rooms.DelegateOwner(c.Request.Context(), ez.UserID(c), c.Param("id"), in.UserID)
		},
	})

	type passwordIn struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required,max=72"`
	}
	ez.RegisterAction(e, ez.Action[passwordIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/rooms/:id/password",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *passwordIn) (gin.H, error) {
			id := c.Param("id")
			if err := h.rooms.ChangePassword(c.Request.Context(), ez.UserID(c), id, in.OldPassword, in.NewPassword); err != nil {
				return nil, err
			}
			return gin.H{"roomId": id}, nil
		},
	})
}
