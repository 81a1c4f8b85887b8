package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-slot-scheduling/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "scheduler-worker")
	log.Info().Str("env", cfg.Env).Msg("scheduler-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()

	loc := cfg.Location()
	store := scheduling.NewPgStore(pgPool, cfg.RowLockTimeout)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	sweeper := scheduling.NewReleaseSweeper(store, log.With().Str("service", "sweep").Logger())
	generator := scheduling.NewSlotGenerator(store, locker, loc, cfg.GenerationParallelism, log.With().Str("service", "generator").Logger())

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	} else {
		publisher = events.NewLogPublisher(log.With().Str("service", "events").Logger())
		log.Warn().Msg("KAFKA_BROKERS not set, events are only logged")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing publisher")
		}
	}()
	relay := events.NewRelay(store, publisher, log.With().Str("service", "relay").Logger())

	jobs := []worker.Job{
		{
			Name:     "release-sweep",
			Schedule: cfg.ReleaseSweepSchedule,
			LockKey:  redisclient.SweepLockKey,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) error {
				_, err := sweeper.Sweep(ctx, time.Now())
				return err
			},
		},
		{
			Name:     "generation-horizon",
			Schedule: cfg.GenerationSchedule,
			Timeout:  30 * time.Minute,
			Run: func(ctx context.Context) error {
				report, err := generator.GenerateHorizon(ctx, time.Now(), cfg.GenerationHorizonDays)
				if err != nil {
					return err
				}
				log.Info().
					Int("units", report.Units).
					Int("inserted", report.Inserted).
					Int("failures", len(report.Failures)).
					Msg("generation horizon complete")
				return nil
			},
		},
		{
			Name:     "outbox-relay",
			Schedule: cfg.OutboxSchedule,
			LockKey:  redisclient.OutboxLockKey,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) error {
				res, err := relay.Flush(ctx)
				if res.Published > 0 || res.Failed > 0 {
					log.Info().Int("published", res.Published).Int("failed", res.Failed).Msg("outbox flushed")
				}
				return err
			},
		},
	}

	scheduler := worker.NewScheduler(rootCtx, locker, loc, log)
	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("invalid job schedule")
		}
	}

	// catch up on anything that fell due while no worker was running
	for _, job := range jobs {
		scheduler.RunOnce(job)
	}
	scheduler.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping scheduler-worker")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	scheduler.Stop(stopCtx)
}
