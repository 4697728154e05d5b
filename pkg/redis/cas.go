package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const casAttempts = 3

var (
	// ErrCASConflict means every attempt lost to a concurrent writer.
	ErrCASConflict = errors.New("redis: concurrent modification")
	// ErrAbortSwap ends a CompareAndSwap without writing.
	ErrAbortSwap = errors.New("redis: swap aborted")
)

// SwapFunc maps the current value (exists=false when absent) to the value to
// write.
type SwapFunc func(current string, exists bool) (string, error)

// CompareAndSwap applies fn under WATCH/MULTI so the write only lands when key
// was not modified since it was read.
func (c *Client) CompareAndSwap(ctx context.Context, key string, ttl time.Duration, fn SwapFunc) error {
	if c.raw == nil {
		return errNotConnected
	}
	if fn == nil {
		return errors.New("swap function required")
	}

	swap := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := err == nil
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.Set(ctx, key, next, ttl).Err()
		})
		return err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := c.raw.Watch(ctx, swap, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrCASConflict
}
