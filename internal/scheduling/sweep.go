package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatchSize = 500

// ReleaseSweeper opens TIMEWISE slots whose release instant has passed.
type ReleaseSweeper struct {
	store Store
	log   zerolog.Logger
}

func NewReleaseSweeper(store Store, log zerolog.Logger) *ReleaseSweeper {
	return &ReleaseSweeper{store: store, log: log}
}

// Sweep releases every due slot and returns how many changed. Slots already
// released, or released concurrently by another sweeper, are skipped.
func (s *ReleaseSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	released := 0
	for {
		due, err := s.store.ListDueReleases(ctx, now, sweepBatchSize)
		if err != nil {
			return released, fmt.Errorf("list due releases: %w", err)
		}

		changed := 0
		for i := range due {
			slot := due[i]
			ok, err := slot.release(now)
			if err != nil {
				s.log.Error().Err(err).Str("slot_id", slot.ID.String()).Msg("cannot release slot")
				continue
			}
			if !ok {
				continue
			}
			applied, err := s.store.UpdatePendingSlotStatus(ctx, slot.ID, slot.Status)
			if err != nil {
				return released, fmt.Errorf("release slot %s: %w", slot.ID, err)
			}
			if applied {
				changed++
			}
		}
		released += changed

		if len(due) < sweepBatchSize || changed == 0 {
			break
		}
	}

	if released > 0 {
		s.log.Info().Int("released", released).Time("now", now).Msg("release sweep complete")
	}
	return released, nil
}
