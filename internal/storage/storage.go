// Package storage 对象存储：参考素材与合成音频都存放在这里，客户端只拿到签名 URL。
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// ErrNotFound 对象不存在。
var ErrNotFound = errors.New("object not found")

// Store 对象存储能力。
type Store interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	SignedDownloadURL(ctx context.Context, key string) (string, error)
	SignedUploadURL(ctx context.Context, key, contentType string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// 存储 key 的类型前缀。
const (
	KindPersonaMedia   = "persona-media"
	KindAssistantAudio = "assistant-audio"
)

const maxNameLen = 100

// NewKey 生成 <kind>/<userID>/<unixMillis>-<uuid>-<name>。
func NewKey(kind, userID, name string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s-%s", kind, userID, now.UnixMilli(), uuid.NewString(), SanitizeName(name))
}

// UserPrefix 某用户某类对象的 key 前缀，用于归属校验。
func UserPrefix(kind, userID string) string {
	return kind + "/" + userID + "/"
}

// SanitizeName 只保留字母数字与 . _ -，其余替换为下划线。
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > maxNameLen {
		out = out[len(out)-maxNameLen:]
	}
	if out == "" {
		return "file"
	}
	return out
}

// DeleteAll 尽力删除一批对象，失败只记日志，返回失败数量。
func DeleteAll(ctx context.Context, store Store, keys []string, logger logging.Logger) int {
	if len(keys) == 0 {
		return 0
	}

	var failed atomic.Int32

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(4)
	for _, key := range keys {
		if key == "" {
			continue
		}
		g.Go(func() error {
			if err := store.DeleteObject(gctx, key); err != nil {
				failed.Add(1)
				logger.Warn(gctx, "storage cleanup failed", "key", key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}
