// Package memory 进程内的 domain.Store 实现，用于本地开发（db.driver=memory）与测试。
// 所有操作共用一把锁；Transaction 在整个回调期间持锁，失败时回滚到快照。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"photory/internal/domain"
)

type state struct {
	users          map[string]domain.User
	rooms          map[string]domain.Room
	participations map[string]domain.Participation
	feeds          map[string]domain.Feed
	feedImages     map[string]domain.FeedImage
}

func newState() *state {
	return &state{
		users:          map[string]domain.User{},
		rooms:          map[string]domain.Room{},
		participations: map[string]domain.Participation{},
		feeds:          map[string]domain.Feed{},
		feedImages:     map[string]domain.FeedImage{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.participations {
		c.participations[k] = v
	}
	for k, v := range s.feeds {
		c.feeds[k] = v
	}
	for k, v := range s.feedImages {
		c.feedImages[k] = v
	}
	return c
}

type Store struct {
	mu   sync.Mutex
	st   *state
	last time.Time
}

func New() *Store {
	return &Store{st: newState()}
}

// now 持锁调用；保证严格递增，排序结果稳定
func (s *Store) now() time.Time {
	t := time.Now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// view 访问 state 的句柄；locked=false 时每次调用自行加锁
type view struct {
	s      *Store
	locked bool
}

func (v view) do(fn func(st *state) error) error {
	if !v.locked {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.st)
}

func (s *Store) Users() domain.UserRepository                   { return users{view{s: s}} }
func (s *Store) Rooms() domain.RoomRepository                   { return rooms{view{s: s}} }
func (s *Store) Participations() domain.ParticipationRepository { return participations{view{s: s}} }
func (s *Store) Feeds() domain.FeedRepository                   { return feeds{view{s: s}} }
func (s *Store) FeedImages() domain.FeedImageRepository         { return feedImages{view{s: s}} }

func (s *Store) Transaction(_ context.Context, fn func(tx domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(txStore{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type txStore struct{ s *Store }

func (t txStore) Users() domain.UserRepository { return users{view{s: t.s, locked: true}} }
func (t txStore) Rooms() domain.RoomRepository { return rooms{view{s: t.s, locked: true}} }
func (t txStore) Participations() domain.ParticipationRepository {
	return participations{view{s: t.s, locked: true}}
}
func (t txStore) Feeds() domain.FeedRepository { return feeds{view{s: t.s, locked: true}} }
func (t txStore) FeedImages() domain.FeedImageRepository {
	return feedImages{view{s: t.s, locked: true}}
}

// 已在事务中：直接复用当前锁
func (t txStore) Transaction(_ context.Context, fn func(tx domain.Store) error) error {
	return fn(t)
}

// ---------- users ----------

type users struct{ view }

func (r users) Create(_ context.Context, u *domain.User) error {
	return r.do(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return domain.ErrDuplicate
		}
		for _, x := range st.users {
			if x.Email == u.Email {
				return domain.ErrDuplicate
			}
		}
		now := r.s.now()
		u.CreatedAt, u.UpdatedAt = now, now
		st.users[u.ID] = *u
		return nil
	})
}

func (r users) FindByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *state) error {
		if u, ok := st.users[id]; ok && !u.DeletedAt.Valid {
			out = &u
		}
		return nil
	})
	return out, err
}

func (r users) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *state) error {
		for _, u := range st.users {
			if u.Email == email && !u.DeletedAt.Valid {
				u := u
				out = &u
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r users) List(_ context.Context, offset, limit int) ([]domain.User, int64, error) {
	var all []domain.User
	_ = r.do(func(st *state) error {
		for _, u := range st.users {
			if !u.DeletedAt.Valid {
				all = append(all, u)
			}
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.User{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r users) SetRole(_ context.Context, id, role string) (bool, error) {
	var ok bool
	err := r.do(func(st *state) error {
		u, found := st.users[id]
		if !found || u.DeletedAt.Valid {
			return nil
		}
		u.Role, u.UpdatedAt = role, r.s.now()
		st.users[id] = u
		ok = true
		return nil
	})
	return ok, err
}

func (r users) SoftDelete(_ context.Context, id string) (bool, error) {
	var ok bool
	err := r.do(func(st *state) error {
		u, found := st.users[id]
		if !found || u.DeletedAt.Valid {
			return nil
		}
		u.DeletedAt.Time, u.DeletedAt.Valid = r.s.now(), true
		st.users[id] = u
		ok = true
		return nil
	})
	return ok, err
}

// ---------- rooms ----------

type rooms struct{ view }

func (r rooms) Create(_ context.Context, room *domain.Room) error {
	return r.do(func(st *state) error {
		if _, ok := st.rooms[room.ID]; ok {
			return domain.ErrDuplicate
		}
		for _, x := range st.rooms {
			if x.Code == room.Code {
				return domain.ErrDuplicate
			}
		}
		now := r.s.now()
		room.CreatedAt, room.UpdatedAt = now, now
		st.rooms[room.ID] = *room
		return nil
	})
}

func (r rooms) Update(_ context.Context, room *domain.Room) error {
	return r.do(func(st *state) error {
		cur, ok := st.rooms[room.ID]
		if !ok {
			return nil
		}
		cur.Title = room.Title
		cur.PasswordHash = room.PasswordHash
		cur.OwnerID = room.OwnerID
		cur.ParticipantsCount = room.ParticipantsCount
		cur.Status = room.Status
		cur.UpdatedAt = r.s.now()
		room.UpdatedAt = cur.UpdatedAt
		st.rooms[room.ID] = cur
		return nil
	})
}

func (r rooms) FindByID(_ context.Context, id string) (*domain.Room, error) {
	var out *domain.Room
	err := r.do(func(st *state) error {
		if room, ok := st.rooms[id]; ok {
			out = &room
		}
		return nil
	})
	return out, err
}

func (r rooms) FindByIDs(_ context.Context, ids []string) ([]domain.Room, error) {
	var out []domain.Room
	err := r.do(func(st *state) error {
		for _, id := range ids {
			if room, ok := st.rooms[id]; ok {
				out = append(out, room)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// 事务内已持全局锁，LockBy* 等价于普通读取
func (r rooms) LockByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.FindByID(ctx, id)
}

func (r rooms) LockByCode(_ context.Context, code string) (*domain.Room, error) {
	var out *domain.Room
	err := r.do(func(st *state) error {
		for _, room := range st.rooms {
			if room.Code == code {
				room := room
				out = &room
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r rooms) ExistsCode(ctx context.Context, code string) (bool, error) {
	room, err := r.LockByCode(ctx, code)
	return room != nil, err
}

// ---------- participations ----------

type participations struct{ view }

func (r participations) Create(_ context.Context, p *domain.Participation) error {
	return r.do(func(st *state) error {
		for _, x := range st.participations {
			if x.ID == p.ID || (x.RoomID == p.RoomID && x.UserID == p.UserID) {
				return domain.ErrDuplicate
			}
		}
		p.CreatedAt = r.s.now()
		st.participations[p.ID] = *p
		return nil
	})
}

func (r participations) Delete(_ context.Context, roomID, userID string) (bool, error) {
	var ok bool
	err := r.do(func(st *state) error {
		for id, x := range st.participations {
			if x.RoomID == roomID && x.UserID == userID {
				delete(st.participations, id)
				ok = true
			}
		}
		return nil
	})
	return ok, err
}

func (r participations) Find(_ context.Context, roomID, userID string) (*domain.Participation, error) {
	var out *domain.Participation
	err := r.do(func(st *state) error {
		for _, x := range st.participations {
			if x.RoomID == roomID && x.UserID == userID {
				x := x
				out = &x
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r participations) filter(keep func(domain.Participation) bool) []domain.Participation {
	var out []domain.Participation
	_ = r.do(func(st *state) error {
		for _, x := range st.participations {
			if keep(x) {
				out = append(out, x)
			}
		}
		return nil
	})
	return out
}

func (r participations) ListByRoom(_ context.Context, roomID string) ([]domain.Participation, error) {
	out := r.filter(func(p domain.Participation) bool { return p.RoomID == roomID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r participations) ListByUser(_ context.Context, userID string) ([]domain.Participation, error) {
	out := r.filter(func(p domain.Participation) bool { return p.UserID == userID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r participations) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	ps, err := r.ListByRoom(ctx, roomID)
	return int64(len(ps)), err
}

// ---------- feeds ----------

type feeds struct{ view }

func (r feeds) Create(_ context.Context, f *domain.Feed) error {
	return r.do(func(st *state) error {
		if _, ok := st.feeds[f.ID]; ok {
			return domain.ErrDuplicate
		}
		now := r.s.now()
		f.CreatedAt, f.UpdatedAt = now, now
		st.feeds[f.ID] = *f
		return nil
	})
}

func (r feeds) Update(_ context.Context, f *domain.Feed) error {
	return r.do(func(st *state) error {
		cur, ok := st.feeds[f.ID]
		if !ok {
			return nil
		}
		cur.Title, cur.Content = f.Title, f.Content
		cur.UpdatedAt = r.s.now()
		f.UpdatedAt = cur.UpdatedAt
		st.feeds[f.ID] = cur
		return nil
	})
}

func (r feeds) Delete(_ context.Context, id string) error {
	return r.do(func(st *state) error {
		delete(st.feeds, id)
		return nil
	})
}

func (r feeds) FindByID(_ context.Context, id string) (*domain.Feed, error) {
	var out *domain.Feed
	err := r.do(func(st *state) error {
		if f, ok := st.feeds[id]; ok {
			out = &f
		}
		return nil
	})
	return out, err
}

func (r feeds) ListByRoom(_ context.Context, roomID string) ([]domain.Feed, error) {
	var out []domain.Feed
	err := r.do(func(st *state) error {
		for _, f := range st.feeds {
			if f.RoomID == roomID {
				out = append(out, f)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// ---------- feed images ----------

type feedImages struct{ view }

func (r feedImages) CreateBatch(_ context.Context, imgs []domain.FeedImage) error {
	return r.do(func(st *state) error {
		now := r.s.now()
		for i := range imgs {
			if _, ok := st.feedImages[imgs[i].ID]; ok {
				return domain.ErrDuplicate
			}
			imgs[i].CreatedAt = now
			st.feedImages[imgs[i].ID] = imgs[i]
		}
		return nil
	})
}

func (r feedImages) ListByFeed(_ context.Context, feedID string) ([]domain.FeedImage, error) {
	var out []domain.FeedImage
	err := r.do(func(st *state) error {
		for _, img := range st.feedImages {
			if img.FeedID == feedID {
				out = append(out, img)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, err
}

func (r feedImages) DeleteByFeed(_ context.Context, feedID string) error {
	return r.do(func(st *state) error {
		for id, img := range st.feedImages {
			if img.FeedID == feedID {
				delete(st.feedImages, id)
			}
		}
		return nil
	})
}
