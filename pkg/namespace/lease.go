package namespace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cartonhq/carton/pkg/common"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgLocker implements Locker on the lease_locks table. A lease is an upsert
// guarded by expiry: taking over a key is only possible once the previous
// holder's TTL has run out. A background loop renews the lease at half TTL
// and cancels the lease context when renewal fails.
type PgLocker struct {
	db dbConn
}

// NewPgLocker builds a locker over a pgx pool.
func NewPgLocker(pool *pgxpool.Pool) *PgLocker {
	return &PgLocker{db: pool}
}

type pgLease struct {
	key   string
	token string

	ctx    context.Context
	cancel context.CancelCauseFunc

	locker *PgLocker

	stopOnce sync.Once
	stopCh   chan struct{}
}

func (l *pgLease) Context() context.Context { return l.ctx }

func (p *PgLocker) Acquire(ctx context.Context, ns string, ttl time.Duration) (Lease, error) {
	if ns == "" {
		return nil, errors.New("namespace is empty")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ttlMs := ttl.Milliseconds()

	tok, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key := LockKey(ns)

	var returnedKey string
	err = p.db.QueryRow(ctx, tryAcquireSQL, key, tok, ttlMs).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("namespace %s: %w", ns, common.ErrLockHeld)
		}
		return nil, err
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &pgLease{
		key:    key,
		token:  tok,
		ctx:    leaseCtx,
		cancel: cancel,
		locker: p,
		stopCh: make(chan struct{}),
	}

	go lease.renewLoop(max(ttl/2, time.Second), ttlMs)

	return lease, nil
}

func (l *pgLease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})

	_, err := l.locker.db.Exec(ctx, releaseSQL, l.key, l.token)
	return err
}

func (l *pgLease) renewLoop(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.ctx.Done():
			return
		case <-t.C:
			if err := l.renewOnce(ttlMs); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

func (l *pgLease) renewOnce(ttlMs int64) error {
	for attempt := range 3 {
		renewCtx, cancel := context.WithTimeout(l.ctx, 15*time.Second)
		var returnedKey string
		err := l.locker.db.QueryRow(renewCtx, renewSQL, l.key, l.token, ttlMs).Scan(&returnedKey)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrLockHeld
		}
		if attempt == 2 {
			return err
		}
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return common.ErrLockHeld
}

const tryAcquireSQL = `
INSERT INTO lease_locks (key, token, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (key) DO UPDATE
SET token      = EXCLUDED.token,
    expires_at = EXCLUDED.expires_at,
    acquired_at = now()
WHERE lease_locks.expires_at < now()
   OR lease_locks.token = EXCLUDED.token
RETURNING key;
`

const renewSQL = `
UPDATE lease_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE key = $1 AND token = $2
RETURNING key;
`

const releaseSQL = `
DELETE FROM lease_locks
WHERE key = $1 AND token = $2;
`
