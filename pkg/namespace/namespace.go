// Package namespace enforces the single-writer rule: every mutating
// operation on a namespace runs under a TTL lease keyed by the namespace
// name, so two writers can never interleave within one partition. Reads
// take no lease.
package namespace

import (
	"context"
	"time"
)

// LockKey derives the lease key for a namespace.
func LockKey(namespace string) string {
	return "namespace:" + namespace
}

// Lease is a held namespace lease. Context is canceled when the lease can no
// longer be renewed; long-running writers should derive their work context
// from it so losing the lease aborts the work.
type Lease interface {
	Context() context.Context
	Release(ctx context.Context) error
}

// Locker hands out namespace leases.
type Locker interface {
	// Acquire takes the lease for a namespace or fails with
	// common.ErrLockHeld when another writer holds it.
	Acquire(ctx context.Context, namespace string, ttl time.Duration) (Lease, error)
}

// WithLease runs fn under a namespace lease, releasing it on every path.
func WithLease(ctx context.Context, locker Locker, namespace string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := locker.Acquire(ctx, namespace, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()
	return fn(lease.Context())
}
