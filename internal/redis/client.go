package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings. Locks are short lived, so the pool stays small.
func NewRedisClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// GenerationLockKey names the lock serializing slot generation for one doctor-branch day.
func GenerationLockKey(doctorBranchID fmt.Stringer, date time.Time) string {
	return fmt.Sprintf("generate:%s:%s", doctorBranchID, date.Format(time.DateOnly))
}

// SweepLockKey names the lock held by the release sweep.
const SweepLockKey = "sweep:release"

// OutboxLockKey names the lock held while the outbox relay drains events.
const OutboxLockKey = "outbox:relay"
