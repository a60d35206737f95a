package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"photory/internal/domain"
	"photory/internal/service"
	"photory/internal/transport/http/ez"
)

// 单条动态最多图片数
const maxFeedImages = 10

type FeedHandler struct {
	feeds *service.FeedService
}

func NewFeedHandler(feeds *service.FeedService) *FeedHandler {
	return &FeedHandler{feeds: feeds}
}

func (h *FeedHandler) MountAPI(_, authed *gin.RouterGroup) {
	e := ez.New(authed)

	type createIn struct {
		Title   string                  `form:"title"   binding:"required,max=100"`
		Content string                  `form:"content" binding:"max=5000"`
		Images  []*multipart.FileHeader `form:"images"`
	}
	ez.RegisterAction(e, ez.Action[createIn, *domain.FeedView]{
		Method: http.MethodPost,
		Path:   "/rooms/:id/feeds",
		Binder: ez.BindForm,
		Auth:   true,
		Handler: func(c *gin.Context, in *createIn) (*domain.FeedView, error) {
			if len(in.Images) > maxFeedImages {
				return nil, ez.BadRequest(fmt.Sprintf("at most %d images per feed", maxFeedImages))
			}
			uploads, closeAll, err := openUploads(in.Images)
			if err != nil {
				return nil, err
			}
			defer closeAll()
			return h.feeds.CreateFeed(c.Request.Context(), ez.UserID(c), c.Param("id"), in.Title, in.Content, uploads)
		},
	})

	type listOut struct {
		Items []domain.FeedView `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[struct{}, listOut]{
		Method: http.MethodGet,
		Path:   "/rooms/:id/feeds",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (listOut, error) {
			feeds, err := h.feeds.ListRoomFeeds(c.Request.Context(), ez.UserID(c), c.Param("id"))
			return listOut{Items: feeds}, err
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.FeedView]{
		Method: http.MethodGet,
		Path:   "/feeds/:id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.FeedView, error) {
			return h.feeds.GetFeed(c.Request.Context(), ez.UserID(c), c.Param("id"))
		},
	})

	type modifyIn struct {
		Title   string `json:"title"   binding:"required,max=100"`
		Content string `json:"content" binding:"max=5000"`
	}
	ez.RegisterAction(e, ez.Action[modifyIn, *domain.FeedView]{
		Method: http.MethodPut,
		Path:   "/feeds/:id",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *modifyIn) (*domain.FeedView, error) {
			return h.feeds.ModifyFeed(c.Request.Context(), ez.UserID(c), c.Param("id"), in.Title, in.Content)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.DeleteFeedResult]{
		Method: http.MethodDelete,
		Path:   "/feeds/:id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.DeleteFeedResult, error) {
			return h.feeds.DeleteFeed(c.Request.Context(), ez.UserID(c), c.Param("id"))
		},
	})
}

func openUploads(files []*multipart.FileHeader) ([]domain.Upload, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	uploads := make([]domain.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, ez.BadRequest("cannot read upload " + fh.Filename)
		}
		closers = append(closers, f)
		uploads = append(uploads, domain.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
