package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"photory/internal/domain"
	"photory/internal/repo/memory"
	"photory/pkg/utils"
)

type fixture struct {
	store   *memory.Store
	objects *fakeObjects
	users   *UserService
	rooms   *RoomService
	feeds   *FeedService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	hasher := testHasher()
	objs := newFakeObjects()
	return &fixture{
		store:   st,
		objects: objs,
		users:   NewUserService(st.Users(), hasher, zap.NewNop()),
		rooms:   NewRoomService(st, hasher, NewCodeGenerator(0), zap.NewNop()),
		feeds:   NewFeedService(st, objs, nil, zap.NewNop()),
	}
}

func testHasher() utils.BcryptHasher { return utils.BcryptHasher{Cost: bcrypt.MinCost} }

// user 注册一个用户并返回 ID
func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.users.Signup(context.Background(), name+"@example.com", "secret-"+name, name)
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) room(t *testing.T, owner, password string) *domain.RoomView {
	t.Helper()
	r, err := f.rooms.CreateRoom(context.Background(), owner, "room of "+owner, password)
	require.NoError(t, err)
	return r
}

func (f *fixture) join(t *testing.T, userID string, r *domain.RoomView, password string) {
	t.Helper()
	_, err := f.rooms.JoinRoom(context.Background(), userID, r.Code, password)
	require.NoError(t, err)
}

func (f *fixture) count(t *testing.T, roomID string) int {
	t.Helper()
	r, err := f.store.Rooms().FindByID(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r.ParticipantsCount
}

func (f *fixture) status(t *testing.T, roomID string) domain.RoomStatus {
	t.Helper()
	r, err := f.store.Rooms().FindByID(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r.Status
}

func image(name string) domain.Upload {
	return domain.Upload{Filename: name, ContentType: "image/png", Body: strings.NewReader("png:" + name)}
}

// fakeObjects 内存对象存储；failDelete 命中的 key 删除失败
type fakeObjects struct {
	mu         sync.Mutex
	seq        int
	objs       map[string][]byte
	failUpload bool
	failDelete func(key string) bool
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objs: map[string][]byte{}} }

func (f *fakeObjects) Upload(_ context.Context, files []domain.Upload) ([]domain.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return nil, errors.New("storage unavailable")
	}
	out := make([]domain.StoredObject, 0, len(files))
	for _, u := range files {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, u.Body); err != nil {
			return nil, err
		}
		f.seq++
		key := fmt.Sprintf("feeds/%03d-%s", f.seq, u.Filename)
		f.objs[key] = buf.Bytes()
		out = append(out, domain.StoredObject{Key: key, URL: "http://files.test/" + key})
	}
	return out, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil && f.failDelete(key) {
		return errors.New("storage delete failed")
	}
	delete(f.objs, key)
	return nil
}

func (f *fakeObjects) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objs[key]
	return ok
}

func (f *fakeObjects) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objs)
}
