package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"photory/internal/core/logger"
	"photory/internal/domain"
)

func TestRoomLifecycle_OwnerLeaveAndDisable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	r, err := f.rooms.CreateRoom(ctx, alice, "T1", "pw1")
	require.NoError(t, err)
	assert.True(t, ValidCode(r.Code))
	assert.Equal(t, 1, r.ParticipantsCount)
	assert.Equal(t, domain.RoomActive, r.Status)
	assert.Equal(t, alice, r.OwnerID)
	assert.Equal(t, "alice@example.com", r.OwnerEmail)

	joined, err := f.rooms.JoinRoom(ctx, bob, r.Code, "pw1")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.ParticipantsCount)

	err = f.rooms.LeaveRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerCannotLeave)

	require.NoError(t, f.rooms.LeaveRoom(ctx, bob, r.ID))
	assert.Equal(t, 1, f.count(t, r.ID))

	err = f.rooms.LeaveRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerMustDisable)
	assert.Equal(t, domain.RoomActive, f.status(t, r.ID), "leave never disables implicitly")

	disabled, err := f.rooms.DisableRoom(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomDisabled, disabled.Status)
	assert.Equal(t, domain.RoomDisabled, f.status(t, r.ID))
}

func TestCreateRoom_ResolvesUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.rooms.CreateRoom(context.Background(), "", "t", "pw")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.rooms.CreateRoom(context.Background(), "ghost", "t", "pw")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreateRoom_UniqueCodes(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		r := f.room(t, alice, "pw")
		assert.False(t, seen[r.Code], "duplicate code %s", r.Code)
		seen[r.Code] = true
	}
}

func TestCreateRoom_StoresPasswordHash(t *testing.T) {
	f := newFixture(t)
	r := f.room(t, f.user(t, "alice"), "pw1")
	stored, err := f.store.Rooms().FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestJoinRoom_Capacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	r := f.room(t, owner, "pw")

	for i := 1; i < domain.MaxParticipants; i++ {
		f.join(t, f.user(t, fmt.Sprintf("u%d", i)), r, "pw")
	}
	assert.Equal(t, domain.MaxParticipants, f.count(t, r.ID))

	ninth := f.user(t, "ninth")
	_, err := f.rooms.JoinRoom(ctx, ninth, r.Code, "pw")
	assert.ErrorIs(t, err, domain.ErrRoomAtCapacity)
	assert.Equal(t, domain.MaxParticipants, f.count(t, r.ID))
}

func TestJoinRoom_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, f.user(t, "owner"), "pw")

	const contenders = 12
	ids := make([]string, contenders)
	for i := range ids {
		ids[i] = f.user(t, fmt.Sprintf("c%d", i))
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
			_, err := f.rooms.JoinRoom(ctx, id, r.Code, "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrRoomAtCapacity):
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.MaxParticipants-1, ok)
	assert.Equal(t, contenders-ok, full)
	assert.Equal(t, domain.MaxParticipants, f.count(t, r.ID))

	parts, err := f.store.Participations().ListByRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, parts, domain.MaxParticipants)
}

func TestJoinRoom_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")

	_, err := f.rooms.JoinRoom(ctx, bob, "ZZZZ9999", "pw")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = f.rooms.JoinRoom(ctx, bob, r.Code, "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	_, err = f.rooms.JoinRoom(ctx, alice, r.Code, "pw")
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	f.join(t, bob, r, "pw")
	_, err = f.rooms.JoinRoom(ctx, bob, r.Code, "pw")
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
	assert.Equal(t, 2, f.count(t, r.ID))
}

func TestJoinRoom_CodeIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	r := f.room(t, f.user(t, "alice"), "pw")
	lower := []byte(r.Code)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}
	_, err := f.rooms.JoinRoom(context.Background(), f.user(t, "bob"), " "+string(lower)+" ", "pw")
	assert.NoError(t, err)
}

func TestLeaveRoom_NonParticipant(t *testing.T) {
	f := newFixture(t)
	r := f.room(t, f.user(t, "alice"), "pw")
	err := f.rooms.LeaveRoom(context.Background(), f.user(t, "bob"), r.ID)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	err = f.rooms.LeaveRoom(context.Background(), f.user(t, "carol"), "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestDisableRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")
	f.join(t, bob, r, "pw")

	_, err := f.rooms.DisableRoom(ctx, bob, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.rooms.DisableRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrOthersStillPresent)
	assert.Equal(t, domain.RoomActive, f.status(t, r.ID))

	require.NoError(t, f.rooms.LeaveRoom(ctx, bob, r.ID))
	_, err = f.rooms.DisableRoom(ctx, alice, r.ID)
	require.NoError(t, err)

	// 停用是终态
	_, err = f.rooms.DisableRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrRoomDisabled)
	_, err = f.rooms.JoinRoom(ctx, bob, r.Code, "pw")
	assert.ErrorIs(t, err, domain.ErrRoomDisabled)
	err = f.rooms.LeaveRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrRoomDisabled)
	err = f.rooms.ChangePassword(ctx, alice, r.ID, "pw", "new")
	assert.ErrorIs(t, err, domain.ErrRoomDisabled)
	assert.Equal(t, domain.RoomDisabled, f.status(t, r.ID))

	mine, err := f.rooms.ListMyRooms(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestDisabledRoomCodeIsNotReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	r := f.room(t, alice, "pw")
	_, err := f.rooms.DisableRoom(ctx, alice, r.ID)
	require.NoError(t, err)

	exists, err := f.store.Rooms().ExistsCode(ctx, r.Code)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestForceRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	r := f.room(t, alice, "pw")
	f.join(t, bob, r, "pw")
	f.join(t, carol, r, "pw")

	_, err := f.rooms.ForceRemove(ctx, bob, r.ID, carol)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.rooms.ForceRemove(ctx, alice, r.ID, alice)
	assert.ErrorIs(t, err, domain.ErrCannotRemoveOwner)

	_, err = f.rooms.ForceRemove(ctx, alice, r.ID, "ghost")
	assert.ErrorIs(t, err, domain.ErrTargetNotParticipant)

	out, err := f.rooms.ForceRemove(ctx, alice, r.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, out.ParticipantsCount)
	assert.Equal(t, 2, f.count(t, r.ID))

	_, err = f.rooms.ForceRemove(ctx, alice, r.ID, bob)
	assert.ErrorIs(t, err, domain.ErrTargetNotParticipant)

	// 被移除后可以重新加入
	f.join(t, bob, r, "pw")
	assert.Equal(t, 3, f.count(t, r.ID))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	r := f.room(t, alice, "old")
	f.join(t, bob, r, "old")

	err := f.rooms.ChangePassword(ctx, bob, r.ID, "old", "new")
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	err = f.rooms.ChangePassword(ctx, alice, r.ID, "nope", "new")
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	require.NoError(t, f.rooms.ChangePassword(ctx, alice, r.ID, "old", "new"))

	_, err = f.rooms.JoinRoom(ctx, carol, r.Code, "old")
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)
	f.join(t, carol, r, "new")
}

func TestDelegateOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	r := f.room(t, alice, "pw")
	f.join(t, bob, r, "pw")

	_, err := f.rooms.DelegateOwner(ctx, alice, r.ID, carol)
	assert.ErrorIs(t, err, domain.ErrTargetNotParticipant)

	_, err = f.rooms.DelegateOwner(ctx, bob, r.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	out, err := f.rooms.DelegateOwner(ctx, alice, r.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, out.OwnerID)
	assert.Equal(t, "bob@example.com", out.OwnerEmail)
	assert.Equal(t, 2, out.ParticipantsCount)

	// 原房主仍是成员，可以正常离开
	_, err = f.rooms.DisableRoom(ctx, alice, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	require.NoError(t, f.rooms.LeaveRoom(ctx, alice, r.ID))

	err = f.rooms.LeaveRoom(ctx, bob, r.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerMustDisable)

	rep, err := f.rooms.CheckConsistency(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)
}

func TestListMyRooms_ActiveNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	first := f.room(t, alice, "pw")
	second := f.room(t, bob, "pw")
	f.join(t, alice, second, "pw")
	third := f.room(t, alice, "pw")
	_, err := f.rooms.DisableRoom(ctx, alice, third.ID)
	require.NoError(t, err)

	mine, err := f.rooms.ListMyRooms(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, "bob@example.com", mine[0].OwnerEmail)
	assert.Equal(t, first.ID, mine[1].ID)

	none, err := f.rooms.ListMyRooms(ctx, f.user(t, "carol"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")

	_, err := f.rooms.GetRoom(ctx, bob, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	f.join(t, bob, r, "pw")
	d, err := f.rooms.GetRoom(ctx, bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Code, d.Code)
	assert.Equal(t, "alice@example.com", d.OwnerEmail)
	require.Len(t, d.Participants, 2)
	assert.Equal(t, alice, d.Participants[0].UserID)
	assert.True(t, d.Participants[0].IsOwner)
	assert.Equal(t, "bob", d.Participants[1].Name)
	assert.False(t, d.Participants[1].IsOwner)
}

func TestReconcile_RepairsCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")
	f.join(t, bob, r, "pw")

	// 模拟计数器漂移
	stored, err := f.store.Rooms().FindByID(ctx, r.ID)
	require.NoError(t, err)
	stored.ParticipantsCount = 5
	require.NoError(t, f.store.Rooms().Update(ctx, stored))

	rep, err := f.rooms.CheckConsistency(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, rep.Consistent)
	assert.Equal(t, 5, rep.Counter)
	assert.Equal(t, 2, rep.Actual)

	rep, err = f.rooms.Reconcile(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, rep.Repaired)
	assert.Equal(t, 2, f.count(t, r.ID))

	rep, err = f.rooms.CheckConsistency(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)

	_, err = f.rooms.Reconcile(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestBannedUserIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")
	require.NoError(t, f.users.Ban(ctx, bob))

	_, err := f.rooms.JoinRoom(ctx, bob, r.Code, "pw")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRoomService_RejectionLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t)
	f.rooms = NewRoomService(f.store, testHasher(), NewCodeGenerator(0), zap.New(core))
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	r := f.room(t, alice, "pw")

	ctx := logger.WithRequestID(context.Background(), "rid-join")
	_, err := f.rooms.JoinRoom(ctx, bob, r.Code, "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidPassword)

	rejected := logs.FilterMessage("room op rejected").All()
	require.Len(t, rejected, 1)
	fields := rejected[0].ContextMap()
	assert.Equal(t, "rid-join", fields["rid"])
	assert.Equal(t, "join", fields["op"])
}

func TestReleaseUser_HandsRoomsOverBeforeBan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	shared := f.room(t, alice, "pw")
	f.join(t, bob, shared, "pw")
	f.join(t, carol, shared, "pw")
	solo := f.room(t, alice, "pw")
	guest := f.room(t, bob, "pw")
	f.join(t, alice, guest, "pw")

	require.NoError(t, f.rooms.ReleaseUser(ctx, alice))
	require.NoError(t, f.users.Ban(ctx, alice))

	// 最早加入的 bob 接任房主
	d, err := f.rooms.GetRoom(ctx, bob, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, d.OwnerID)
	assert.Equal(t, 2, d.ParticipantsCount)
	rep, err := f.rooms.CheckConsistency(ctx, shared.ID)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)

	// 新房主可以继续管理
	_, err = f.rooms.ForceRemove(ctx, bob, shared.ID, carol)
	require.NoError(t, err)

	assert.Equal(t, domain.RoomDisabled, f.status(t, solo.ID))
	assert.Equal(t, 1, f.count(t, guest.ID))

	// 再次调用无副作用
	require.NoError(t, f.rooms.ReleaseUser(ctx, alice))
}
