package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// storeRetry runs a store call with bounded exponential backoff. Rejections,
// missing records and guard conflicts are returned at once.
type storeRetry struct {
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

func (r storeRetry) do(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.backoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.maxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if domain.IsRejection(err) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		attempt++
		r.log.Warn("Store operation failed, retrying", "op", op, "attempt", attempt, "backoff", wait, "error", err)
	})
}
