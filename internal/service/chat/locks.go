package chat

import (
	"context"
	"sync"
)

// sessionLocks 按会话 ID 串行化回合，不同会话互不阻塞。
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock 容量为 1 的通道充当互斥锁，等待时可以被 ctx 取消。
type sessionLock struct {
	ch   chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock 获取会话锁并返回释放函数；ctx 结束时放弃等待。没有等待者时条目会被回收。
func (l *sessionLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, entry)
		return nil, ctx.Err()
	}

	return func() {
		<-entry.ch
		l.release(id, entry)
	}, nil
}

func (l *sessionLocks) release(id string, entry *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
