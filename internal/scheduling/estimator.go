package scheduling

import (
	"math"
	"time"
)

// SlotWindow is the part of a slot the estimator needs.
type SlotWindow struct {
	Date            time.Time
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	TotalSlots      int
	DurationMinutes *int
}

// EstimateExpectedTime projects when the patient holding serial (1-based)
// will be seen: the slot's minutes are shared evenly across its capacity.
func EstimateExpectedTime(w SlotWindow, serial int, loc *time.Location) (time.Time, error) {
	if w.TotalSlots <= 0 {
		return time.Time{}, validationf("slot capacity must be positive, got %d", w.TotalSlots)
	}
	if serial < 1 {
		return time.Time{}, validationf("serial must be >= 1, got %d", serial)
	}
	if loc == nil {
		loc = time.UTC
	}

	minutes := float64(w.EndTime - w.StartTime)
	if w.DurationMinutes != nil {
		minutes = float64(*w.DurationMinutes)
	}
	perPatient := minutes / float64(w.TotalSlots)
	offset := math.Round(float64(serial-1) * perPatient)

	return w.StartTime.On(w.Date, loc).Add(time.Duration(offset) * time.Minute), nil
}
