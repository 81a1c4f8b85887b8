package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

const defaultBatchSize = 100

// Relay drains the outbox. Delivery is at least once: an event that was
// produced but not marked is produced again on the next flush.
type Relay struct {
	outbox    scheduling.Outbox
	publisher Publisher
	log       zerolog.Logger
	batchSize int
	now       func() time.Time
}

func NewRelay(outbox scheduling.Outbox, publisher Publisher, log zerolog.Logger) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		log:       log,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

type FlushResult struct {
	Published int
	Failed    int
}

// Flush publishes pending events in id order. It stops at the first failure
// so later events for the same appointment never overtake an earlier one.
func (r *Relay) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	for {
		pending, err := r.outbox.ListUnpublishedEvents(ctx, r.batchSize)
		if err != nil {
			return res, fmt.Errorf("list unpublished events: %w", err)
		}
		if len(pending) == 0 {
			return res, nil
		}

		for _, ev := range pending {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				res.Failed++
				r.log.Warn().Err(err).
					Int64("event_id", ev.ID).
					Str("event_type", ev.EventType).
					Int("attempts", ev.Attempts+1).
					Msg("event publish failed")
				if markErr := r.outbox.MarkEventFailed(ctx, ev.ID, err.Error()); markErr != nil {
					return res, fmt.Errorf("mark event %d failed: %w", ev.ID, markErr)
				}
				return res, nil
			}
			if err := r.outbox.MarkEventPublished(ctx, ev.ID, r.now()); err != nil {
				return res, fmt.Errorf("mark event %d published: %w", ev.ID, err)
			}
			res.Published++
		}

		if len(pending) < r.batchSize {
			return res, nil
		}
	}
}
