package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

type busyLocker struct{ keys []string }

func (l *busyLocker) WithLock(_ context.Context, key string, _ func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return redisclient.ErrLockNotAcquired
}

func TestScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("runs under lock", func(t *testing.T) {
		s := NewScheduler(ctx, redisclient.NoopLocker{}, time.UTC, zerolog.Nop())
		ran := false
		s.RunOnce(Job{Name: "sweep", LockKey: redisclient.SweepLockKey, Run: func(ctx context.Context) error {
			ran = true
			if _, ok := ctx.Deadline(); !ok {
				t.Error("job context has no deadline")
			}
			return nil
		}})
		if !ran {
			t.Error("job did not run")
		}
	})

	t.Run("skips when lock is held", func(t *testing.T) {
		locker := &busyLocker{}
		s := NewScheduler(ctx, locker, time.UTC, zerolog.Nop())
		s.RunOnce(Job{Name: "relay", LockKey: redisclient.OutboxLockKey, Run: func(context.Context) error {
			t.Error("job ran without the lock")
			return nil
		}})
		if len(locker.keys) != 1 || locker.keys[0] != redisclient.OutboxLockKey {
			t.Errorf("unexpected lock keys %v", locker.keys)
		}
	})

	t.Run("unguarded job skips the locker", func(t *testing.T) {
		locker := &busyLocker{}
		s := NewScheduler(ctx, locker, time.UTC, zerolog.Nop())
		ran := false
		s.RunOnce(Job{Name: "horizon", Run: func(context.Context) error {
			ran = true
			return errors.New("boom")
		}})
		if !ran || len(locker.keys) != 0 {
			t.Errorf("ran=%v lock calls=%d", ran, len(locker.keys))
		}
	})
}

func TestScheduler_AddRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), redisclient.NoopLocker{}, nil, zerolog.Nop())
	if err := s.Add(Job{Name: "bad", Schedule: "every tuesday", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected an invalid schedule to be rejected")
	}
	if err := s.Add(Job{Name: "ok", Schedule: "@every 1m", Run: func(context.Context) error { return nil }}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
