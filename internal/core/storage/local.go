// Package storage 动态图片的对象存储。本地磁盘实现，对象键由内容 blake3 摘要派生。
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"photory/internal/domain"
)

var ErrInvalidKey = errors.New("storage: invalid object key")

// allowedExt 仅接受图片
var allowedExt = map[string]string{
	".jpg": ".jpg", ".jpeg": ".jpg", ".png": ".png", ".gif": ".gif", ".webp": ".webp", ".heic": ".heic",
}

type Local struct {
	Root    string // 存储根目录
	BaseURL string // 对外访问前缀，如 http://127.0.0.1:8080/files
	Prefix  string // 键前缀，默认 feeds
}

func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Local{Root: root, BaseURL: strings.TrimRight(baseURL, "/"), Prefix: "feeds"}, nil
}

// Upload 任一文件失败时清理本批已写入的对象
func (l *Local) Upload(ctx context.Context, files []domain.Upload) ([]domain.StoredObject, error) {
	out := make([]domain.StoredObject, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			l.rollback(ctx, out)
			return nil, err
		}
		obj, err := l.put(f)
		if err != nil {
			l.rollback(ctx, out)
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (l *Local) put(f domain.Upload) (domain.StoredObject, error) {
	ext, ok := allowedExt[strings.ToLower(filepath.Ext(f.Filename))]
	if !ok {
		return domain.StoredObject{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedImage, f.Filename)
	}
	tmp, err := os.CreateTemp(l.Root, ".upload-*")
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), f.Body); err != nil {
		tmp.Close()
		return domain.StoredObject{}, fmt.Errorf("storage: write %q: %w", f.Filename, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.StoredObject{}, fmt.Errorf("storage: close %q: %w", f.Filename, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	// 摘要定位目录，随机后缀保证同内容的多次上传互不影响删除
	key := path.Join(l.prefix(), sum[:2], sum[2:32]+"-"+uuid.NewString()[:8]+ext)
	dst := filepath.Join(l.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return domain.StoredObject{}, fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return domain.StoredObject{}, fmt.Errorf("storage: move %q: %w", f.Filename, err)
	}
	return domain.StoredObject{Key: key, URL: l.BaseURL + "/" + key}, nil
}

// Delete 对象不存在视为成功
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean != key || !strings.HasPrefix(clean, l.prefix()+"/") {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean)), nil
}

func (l *Local) rollback(ctx context.Context, objs []domain.StoredObject) {
	for _, o := range objs {
		_ = l.Delete(ctx, o.Key)
	}
}

func (l *Local) prefix() string {
	if l.Prefix == "" {
		return "feeds"
	}
	return l.Prefix
}
