package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// MemoryObject 内存中保存的对象。
type MemoryObject struct {
	ContentType string
	Body        []byte
}

// MemoryStore 本地开发用的对象存储，签名 URL 只是带过期时间的占位地址。
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]MemoryObject
	baseURL string
	expiry  time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string, expiry time.Duration) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://local"
	}
	return &MemoryStore{
		objects: make(map[string]MemoryObject),
		baseURL: baseURL,
		expiry:  expiry,
		now:     time.Now,
	}
}

func (m *MemoryStore) PutObject(_ context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	m.objects[key] = MemoryObject{ContentType: contentType, Body: append([]byte(nil), body...)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SignedDownloadURL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return m.sign(key, "GET"), nil
}

func (m *MemoryStore) SignedUploadURL(_ context.Context, key, _ string) (string, error) {
	return m.sign(key, "PUT"), nil
}

func (m *MemoryStore) sign(key, method string) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", fmt.Sprint(m.now().Add(m.expiry).Unix()))
	return m.baseURL + "/" + key + "?" + q.Encode()
}

func (m *MemoryStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Object 读取对象，测试和本地调试使用。
func (m *MemoryStore) Object(key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len 当前对象数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
