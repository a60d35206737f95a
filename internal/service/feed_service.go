package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photory/internal/core/logger"
	"photory/internal/domain"
	"photory/pkg/utils"
)

// FeedCache 动态快照缓存（不含任何权限信息）
type FeedCache interface {
	Feed(ctx context.Context, id string, load func(ctx context.Context) (*domain.FeedView, error)) (*domain.FeedView, error)
	Invalidate(ctx context.Context, id string)
}

type noCache struct{}

func (noCache) Feed(ctx context.Context, _ string, load func(ctx context.Context) (*domain.FeedView, error)) (*domain.FeedView, error) {
	return load(ctx)
}
func (noCache) Invalidate(context.Context, string) {}

// 删除动态时并发删除存储对象的上限
const deleteConcurrency = 4

// FeedService 房间内的动态：成员可读可发，作者可改可删
type FeedService struct {
	store   domain.Store
	objects domain.ObjectStorage
	cache   FeedCache
	log     *zap.Logger
}

func NewFeedService(store domain.Store, objects domain.ObjectStorage, cache FeedCache, log *zap.Logger) *FeedService {
	if store == nil || objects == nil {
		panic("feed service: store and object storage are required")
	}
	if cache == nil {
		cache = noCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedService{store: store, objects: objects, cache: cache, log: log.Named("feed")}
}

func (s *FeedService) CreateFeed(ctx context.Context, userID, roomID, title, content string, uploads []domain.Upload) (*domain.FeedView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	// 上传前先校验一次，避免给非成员写入存储
	room, err := findRoom(ctx, s.store.Rooms(), roomID)
	if err != nil {
		return nil, err
	}
	if err := s.canPost(ctx, s.store, room, u.ID); err != nil {
		return nil, err
	}

	var objs []domain.StoredObject
	if len(uploads) > 0 {
		objs, err = s.objects.Upload(ctx, uploads)
		if err != nil {
			return nil, fmt.Errorf("upload feed images: %w", err)
		}
	}

	feed := &domain.Feed{ID: utils.NewID(), RoomID: room.ID, AuthorID: u.ID, Title: title, Content: content}
	imgs := make([]domain.FeedImage, 0, len(objs))
	for i, o := range objs {
		imgs = append(imgs, domain.FeedImage{ID: utils.NewID(), FeedID: feed.ID, Position: i, URL: o.URL, StorageKey: o.Key})
	}
	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Rooms().LockByID(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}
		if locked == nil {
			return domain.ErrRoomNotFound
		}
		if err := s.canPost(ctx, tx, locked, u.ID); err != nil {
			return err
		}
		if err := tx.Feeds().Create(ctx, feed); err != nil {
			return fmt.Errorf("create feed: %w", err)
		}
		if err := tx.FeedImages().CreateBatch(ctx, imgs); err != nil {
			return fmt.Errorf("create feed images: %w", err)
		}
		return nil
	})
	if err != nil {
		// 记录未落库，回收已上传的对象
		s.deleteObjects(ctx, imgs)
		return nil, err
	}
	logger.Ctx(ctx, s.log).Info("feed created", zap.String("feed_id", feed.ID), zap.String("room_id", room.ID),
		zap.String("author_id", u.ID), zap.Int("images", len(imgs)))
	v := toFeedView(feed, imgs)
	return &v, nil
}

func (s *FeedService) GetFeed(ctx context.Context, userID, feedID string) (*domain.FeedView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	v, err := s.cache.Feed(ctx, feedID, func(ctx context.Context) (*domain.FeedView, error) {
		return s.loadView(ctx, feedID)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.ErrFeedNotFound
	}
	// 成员资格每次实时校验
	if err := requireParticipant(ctx, s.store.Participations(), v.RoomID, u.ID, domain.ErrNotParticipant); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *FeedService) ListRoomFeeds(ctx context.Context, userID, roomID string) ([]domain.FeedView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	room, err := findRoom(ctx, s.store.Rooms(), roomID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.store.Participations(), room.ID, u.ID, domain.ErrNotParticipant); err != nil {
		return nil, err
	}
	feeds, err := s.store.Feeds().ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	out := make([]domain.FeedView, 0, len(feeds))
	for i := range feeds {
		imgs, err := s.store.FeedImages().ListByFeed(ctx, feeds[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list feed images: %w", err)
		}
		out = append(out, toFeedView(&feeds[i], imgs))
	}
	return out, nil
}

// ModifyFeed 整体替换标题与正文，仅作者可改
func (s *FeedService) ModifyFeed(ctx context.Context, userID, feedID, title, content string) (*domain.FeedView, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	var feed *domain.Feed
	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		var err error
		feed, err = findFeed(ctx, tx.Feeds(), feedID)
		if err != nil {
			return err
		}
		if feed.AuthorID != u.ID {
			return domain.ErrNotFeedOwner
		}
		room, err := findRoom(ctx, tx.Rooms(), feed.RoomID)
		if err != nil {
			return err
		}
		if err := requireActive(room); err != nil {
			return err
		}
		feed.Title, feed.Content = title, content
		return tx.Feeds().Update(ctx, feed)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, feedID)
	imgs, err := s.store.FeedImages().ListByFeed(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("list feed images: %w", err)
	}
	logger.Ctx(ctx, s.log).Info("feed modified", zap.String("feed_id", feedID))
	v := toFeedView(feed, imgs)
	return &v, nil
}

// DeleteFeed 先逐个删除存储对象（互不阻塞），再删图片记录和动态本身。
// 删除失败的对象键通过日志、指标和返回值暴露，便于人工对账。
func (s *FeedService) DeleteFeed(ctx context.Context, userID, feedID string) (*domain.DeleteFeedResult, error) {
	u, err := resolveUser(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	feed, err := findFeed(ctx, s.store.Feeds(), feedID)
	if err != nil {
		return nil, err
	}
	if feed.AuthorID != u.ID {
		return nil, domain.ErrNotFeedOwner
	}
	imgs, err := s.store.FeedImages().ListByFeed(ctx, feed.ID)
	if err != nil {
		return nil, fmt.Errorf("list feed images: %w", err)
	}

	orphaned := s.deleteObjects(ctx, imgs)

	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		if err := tx.FeedImages().DeleteByFeed(ctx, feed.ID); err != nil {
			return fmt.Errorf("delete feed images: %w", err)
		}
		if err := tx.Feeds().Delete(ctx, feed.ID); err != nil {
			return fmt.Errorf("delete feed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, feed.ID)
	logger.Ctx(ctx, s.log).Info("feed deleted", zap.String("feed_id", feed.ID), zap.Int("images", len(imgs)),
		zap.Int("orphaned", len(orphaned)))
	return &domain.DeleteFeedResult{FeedID: feed.ID, OrphanedKeys: orphaned}, nil
}

// deleteObjects 返回删除失败的对象键
func (s *FeedService) deleteObjects(ctx context.Context, imgs []domain.FeedImage) []string {
	if len(imgs) == 0 {
		return nil
	}
	var (
		mu       sync.Mutex
		orphaned []string
		g        errgroup.Group
	)
	g.SetLimit(deleteConcurrency)
	for _, img := range imgs {
		g.Go(func() error {
			if err := s.objects.Delete(ctx, img.StorageKey); err != nil {
				orphanedObjects.Inc()
				logger.Ctx(ctx, s.log).Error("storage object delete failed",
					zap.String("feed_id", img.FeedID), zap.String("key", img.StorageKey), zap.Error(err))
				mu.Lock()
				orphaned = append(orphaned, img.StorageKey)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(orphaned)
	return orphaned
}

func (s *FeedService) canPost(ctx context.Context, st domain.Store, room *domain.Room, userID string) error {
	if err := requireActive(room); err != nil {
		return err
	}
	return requireParticipant(ctx, st.Participations(), room.ID, userID, domain.ErrNotParticipant)
}

func (s *FeedService) loadView(ctx context.Context, feedID string) (*domain.FeedView, error) {
	feed, err := findFeed(ctx, s.store.Feeds(), feedID)
	if err != nil {
		return nil, err
	}
	imgs, err := s.store.FeedImages().ListByFeed(ctx, feed.ID)
	if err != nil {
		return nil, fmt.Errorf("list feed images: %w", err)
	}
	v := toFeedView(feed, imgs)
	return &v, nil
}

func findFeed(ctx context.Context, feeds domain.FeedRepository, id string) (*domain.Feed, error) {
	f, err := feeds.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find feed: %w", err)
	}
	if f == nil {
		return nil, domain.ErrFeedNotFound
	}
	return f, nil
}

func toFeedView(f *domain.Feed, imgs []domain.FeedImage) domain.FeedView {
	urls := make([]string, 0, len(imgs))
	for _, img := range imgs {
		urls = append(urls, img.URL)
	}
	return domain.FeedView{
		ID:         f.ID,
		RoomID:     f.RoomID,
		AuthorID:   f.AuthorID,
		Title:      f.Title,
		Content:    f.Content,
		ImageURLs:  urls,
		CreatedAt:  f.CreatedAt,
		ModifiedAt: f.UpdatedAt,
	}
}
