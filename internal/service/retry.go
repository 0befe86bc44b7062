package service

import (
	"context"
	"edu_practice_backend/internal/util"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultConflictRetries = 3

func newConflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// retryOnConflict 仅在 util.ErrConcurrentModification 时重试，最多执行 maxAttempts 次。
// 返回实际执行次数；次数耗尽时返回最后一次的冲突错误。
func retryOnConflict(ctx context.Context, maxAttempts int, op func() error) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultConflictRetries
	}

	attempts := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(newConflictBackOff(), uint64(maxAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil || errors.Is(err, util.ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	return attempts, err
}
