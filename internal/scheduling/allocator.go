package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotAllocator is the only writer of slot capacity counters. Each call takes
// the slot's row lock, applies the transition and writes it back before the
// lock is released.
type SlotAllocator struct {
	store   Store
	retries int
	backoff time.Duration
}

func NewSlotAllocator(store Store, retries int, backoff time.Duration) *SlotAllocator {
	if retries < 1 {
		retries = 1
	}
	return &SlotAllocator{store: store, retries: retries, backoff: backoff}
}

// Book reserves one place and returns the caller's serial within the slot.
func (a *SlotAllocator) Book(ctx context.Context, slotID uuid.UUID) (int, error) {
	var serial int
	err := a.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		serial, err = a.BookTx(ctx, tx, slotID)
		return err
	})
	return serial, err
}

// Cancel hands one place back.
func (a *SlotAllocator) Cancel(ctx context.Context, slotID uuid.UUID) error {
	return a.InTx(ctx, func(ctx context.Context, tx Store) error {
		return a.CancelTx(ctx, tx, slotID)
	})
}

// BookTx is Book inside a caller-owned transaction.
func (a *SlotAllocator) BookTx(ctx context.Context, tx Store, slotID uuid.UUID) (int, error) {
	slot, err := tx.LockSlot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	serial, err := slot.reserve()
	if err != nil {
		return 0, err
	}
	if err := tx.UpdateSlotCapacity(ctx, slot); err != nil {
		return 0, fmt.Errorf("update slot capacity: %w", err)
	}
	return serial, nil
}

// CancelTx is Cancel inside a caller-owned transaction.
func (a *SlotAllocator) CancelTx(ctx context.Context, tx Store, slotID uuid.UUID) error {
	slot, err := tx.LockSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if err := slot.restore(); err != nil {
		return err
	}
	if err := tx.UpdateSlotCapacity(ctx, slot); err != nil {
		return fmt.Errorf("update slot capacity: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction and retries the whole transaction when a row
// lock could not be taken. Once retries run out the caller gets ErrSlotUnavailable.
func (a *SlotAllocator) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	for attempt := 0; attempt < a.retries; attempt++ {
		err := a.store.RunInTx(ctx, fn)
		if !errors.Is(err, ErrLockContention) {
			return err
		}
		if attempt == a.retries-1 {
			break
		}
		wait := a.backoff * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: lock contention after %d attempts", ErrSlotUnavailable, a.retries)
}
