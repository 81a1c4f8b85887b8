package worker

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

// Job is one periodic unit of background work.
type Job struct {
	Name     string
	Schedule string
	// LockKey serialises the job across worker replicas. Empty means unguarded.
	LockKey string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	locker redisclient.Locker
	log    zerolog.Logger
	ctx    context.Context
}

func NewScheduler(ctx context.Context, locker redisclient.Locker, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		locker: locker,
		log:    log,
		ctx:    ctx,
	}
}

func (s *Scheduler) Add(job Job) error {
	_, err := s.cron.AddFunc(job.Schedule, func() { s.RunOnce(job) })
	if err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job scheduled")
	return nil
}

// RunOnce runs job under its lock. A held lock means another replica is on
// it, so the run is skipped.
func (s *Scheduler) RunOnce(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	start := time.Now()
	var err error
	if job.LockKey == "" {
		err = job.Run(ctx)
	} else {
		err = s.locker.WithLock(ctx, job.LockKey, job.Run)
	}

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.log.Debug().Str("job", job.Name).Msg("job held by another worker, skipping")
	case err != nil:
		s.log.Error().Err(err).Str("job", job.Name).Dur("duration", time.Since(start)).Msg("job failed")
	default:
		s.log.Info().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("job complete")
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
