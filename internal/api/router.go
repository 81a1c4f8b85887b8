package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

type BookingService interface {
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Reschedule(ctx context.Context, id, newSlotID uuid.UUID) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	CheckIn(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

type QueueService interface {
	LiveQueue(ctx context.Context, query scheduling.QueueQuery) (*scheduling.QueueBoard, error)
	QueueCount(ctx context.Context, branchID uuid.UUID, date *time.Time) (int, error)
}

type ScheduleService interface {
	SaveWeeklySchedule(ctx context.Context, ws *scheduling.WeeklySchedule) error
	AddBreak(ctx context.Context, b *scheduling.ScheduleBreak) error
	AddLeave(ctx context.Context, l *scheduling.Leave) error
	ApproveLeave(ctx context.Context, id uuid.UUID) (*scheduling.Leave, error)
}

type SlotService interface {
	Generate(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) (*scheduling.GenerationResult, error)
	Slots(ctx context.Context, doctorBranchID uuid.UUID, date time.Time) ([]scheduling.Slot, error)
}

type RouterConfig struct {
	Bookings       BookingService
	Queue          QueueService
	Schedules      ScheduleService
	Slots          SlotService
	Health         *HealthHandler
	Log            zerolog.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Bookings, cfg.Log))
			r.Get("/{id}", getAppointmentHandler(cfg.Bookings, cfg.Log))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings, cfg.Log))
			r.Post("/{id}/check-in", checkInHandler(cfg.Bookings, cfg.Log))
			r.Post("/{id}/complete", completeHandler(cfg.Bookings, cfg.Log))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Bookings, cfg.Log))
		})

		r.Get("/branches/{branchID}/queue", liveQueueHandler(cfg.Queue, cfg.Log))
		r.Get("/branches/{branchID}/queue/count", queueCountHandler(cfg.Queue, cfg.Log))

		r.Route("/doctor-branches/{id}", func(r chi.Router) {
			r.Put("/schedules/{day}", saveScheduleHandler(cfg.Schedules, cfg.Log))
			r.Post("/breaks", addBreakHandler(cfg.Schedules, cfg.Log))
			r.Post("/leaves", addLeaveHandler(cfg.Schedules, cfg.Log))
			r.Post("/slots/generate", generateSlotsHandler(cfg.Slots, cfg.Log))
			r.Get("/slots", listSlotsHandler(cfg.Slots, cfg.Log))
		})
		r.Post("/leaves/{id}/approve", approveLeaveHandler(cfg.Schedules, cfg.Log))
	})

	return r
}
