package namespace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cartonhq/carton/pkg/common"
)

// MemLocker is a process-local Locker for tests and single-node runs.
type MemLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewMemLocker() *MemLocker {
	return &MemLocker{held: make(map[string]time.Time)}
}

type memLease struct {
	key    string
	locker *MemLocker

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (l *memLease) Context() context.Context { return l.ctx }

func (l *memLease) Release(_ context.Context) error {
	l.once.Do(func() {
		l.cancel()
		l.locker.mu.Lock()
		delete(l.locker.held, l.key)
		l.locker.mu.Unlock()
	})
	return nil
}

func (m *MemLocker) Acquire(ctx context.Context, ns string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := LockKey(ns)

	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, ok := m.held[key]; ok && time.Now().Before(expiry) {
		return nil, fmt.Errorf("namespace %s: %w", ns, common.ErrLockHeld)
	}
	m.held[key] = time.Now().Add(ttl)

	leaseCtx, cancel := context.WithCancel(ctx)
	return &memLease{key: key, locker: m, ctx: leaseCtx, cancel: cancel}, nil
}
