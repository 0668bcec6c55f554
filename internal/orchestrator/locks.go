package orchestrator

import (
	"context"
	"sync"

	"github.com/gapscan/gapscan/internal/cache"
)

// Locker serializes runs for the same tenant+project. Concurrent runs for
// different tenants never contend.
type Locker interface {
	Acquire(ctx context.Context, tenantID, projectID, runID string) (bool, error)
	Release(ctx context.Context, tenantID, projectID, runID string) error
}

// MemoryLocker is the in-process lock used in local mode.
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]string // tenant+project -> run id
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, tenantID, projectID, runID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := tenantID + "\x00" + projectID
	if _, held := l.holders[key]; held {
		return false, nil
	}
	l.holders[key] = runID
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, tenantID, projectID, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := tenantID + "\x00" + projectID
	if l.holders[key] == runID {
		delete(l.holders, key)
	}
	return nil
}

// RedisLocker backs the run lock with Redis for server mode, where multiple
// processes may race on the same tenant+project.
type RedisLocker struct {
	client *cache.Client
}

func NewRedisLocker(client *cache.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, tenantID, projectID, runID string) (bool, error) {
	return l.client.AcquireRunLock(ctx, tenantID, projectID, runID)
}

func (l *RedisLocker) Release(ctx context.Context, tenantID, projectID, runID string) error {
	return l.client.ReleaseRunLock(ctx, tenantID, projectID, runID)
}
