package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TxRunner is satisfied by *Client and by test doubles.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TxPolicy bounds a mutating engine transaction.
type TxPolicy struct {
	Timeout     time.Duration
	LockTimeout time.Duration
}

// RunBounded executes fn in a transaction that gives up after policy.Timeout
// and waits at most policy.LockTimeout on row locks. Lock failures surface as
// CONCURRENCY_CONFLICT so callers can retry with backoff.
func RunBounded(ctx context.Context, runner TxRunner, policy TxPolicy, op string, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := SetLockTimeout(tx, policy.LockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
	return MapTxError(err, op)
}
