package repo_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"photory/internal/core/database"
	"photory/internal/domain"
	"photory/internal/repo"
	"photory/internal/service"
	"photory/pkg/utils"
)

func newStore(t *testing.T) *repo.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewGorm(database.Opts{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repo.NewStore(db)
}

func seedUser(t *testing.T, st domain.Store, id string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@example.com", Name: id, PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seedUser(t, st, "alice")
	seedUser(t, st, "bob")

	err := st.Users().Create(ctx, &domain.User{ID: "dup", Email: "alice@example.com", Name: "x", PasswordHash: "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	u, err := st.Users().FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "bob", u.ID)

	missing, err := st.Users().FindByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	us, total, err := st.Users().List(ctx, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, us, 1)

	ok, err := st.Users().SoftDelete(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Users().SoftDelete(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	gone, err := st.Users().FindByID(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRoomRepo_UniqueCodeAndLocking(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seedUser(t, st, "alice")

	room := &domain.Room{ID: "r1", Code: "ABCD1234", Title: "t", PasswordHash: "h", OwnerID: "alice",
		ParticipantsCount: 1, Status: domain.RoomActive}
	require.NoError(t, st.Rooms().Create(ctx, room))

	err := st.Rooms().Create(ctx, &domain.Room{ID: "r2", Code: "ABCD1234", OwnerID: "alice", Status: domain.RoomActive})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	exists, err := st.Rooms().ExistsCode(ctx, "ABCD1234")
	require.NoError(t, err)
	assert.True(t, exists)

	err = st.Transaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Rooms().LockByCode(ctx, "ABCD1234")
		require.NoError(t, err)
		require.NotNil(t, locked)
		locked.ParticipantsCount = 2
		locked.Status = domain.RoomDisabled
		return tx.Rooms().Update(ctx, locked)
	})
	require.NoError(t, err)

	got, err := st.Rooms().FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ParticipantsCount)
	assert.Equal(t, domain.RoomDisabled, got.Status)
	assert.Equal(t, "ABCD1234", got.Code)

	none, err := st.Rooms().LockByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seedUser(t, st, "alice")
	require.NoError(t, st.Rooms().Create(ctx, &domain.Room{ID: "r1", Code: "AAAA0000", OwnerID: "alice",
		ParticipantsCount: 1, Status: domain.RoomActive}))

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.Participations().Create(ctx, &domain.Participation{ID: "p1", RoomID: "r1", UserID: "alice"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := st.Participations().CountByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParticipationRepo_Unique(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := &domain.Participation{ID: "p1", RoomID: "r1", UserID: "alice"}
	require.NoError(t, st.Participations().Create(ctx, p))

	err := st.Participations().Create(ctx, &domain.Participation{ID: "p2", RoomID: "r1", UserID: "alice"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	ok, err := st.Participations().Delete(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Participations().Delete(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedRepos(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Feeds().Create(ctx, &domain.Feed{ID: "f1", RoomID: "r1", AuthorID: "alice", Title: "t"}))
	require.NoError(t, st.FeedImages().CreateBatch(ctx, []domain.FeedImage{
		{ID: "i2", FeedID: "f1", Position: 1, URL: "u2", StorageKey: "k2"},
		{ID: "i1", FeedID: "f1", Position: 0, URL: "u1", StorageKey: "k1"},
	}))
	require.NoError(t, st.FeedImages().CreateBatch(ctx, nil))

	imgs, err := st.FeedImages().ListByFeed(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "k1", imgs[0].StorageKey)

	f, err := st.Feeds().FindByID(ctx, "f1")
	require.NoError(t, err)
	f.Title = "t2"
	require.NoError(t, st.Feeds().Update(ctx, f))

	require.NoError(t, st.FeedImages().DeleteByFeed(ctx, "f1"))
	require.NoError(t, st.Feeds().Delete(ctx, "f1"))
	gone, err := st.Feeds().FindByID(ctx, "f1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// 与内存实现相同的房间状态机，跑在 sqlite 上
func TestRoomService_OnGorm(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	hasher := utils.BcryptHasher{Cost: bcrypt.MinCost}
	rooms := service.NewRoomService(st, hasher, service.NewCodeGenerator(0), zap.NewNop())

	owner := seedUser(t, st, "owner")
	r, err := rooms.CreateRoom(ctx, owner.ID, "T1", "pw")
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, seedUser(t, st, fmt.Sprintf("u%d", i)).ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rooms.JoinRoom(ctx, id, r.Code, "pw")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, domain.ErrRoomAtCapacity) {
				full++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, domain.MaxParticipants-1, ok)
	assert.Equal(t, len(ids)-ok, full)

	rep, err := rooms.CheckConsistency(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)
	assert.Equal(t, domain.MaxParticipants, rep.Actual)

	err = rooms.LeaveRoom(ctx, owner.ID, r.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerCannotLeave)
}
