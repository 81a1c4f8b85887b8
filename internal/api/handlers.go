package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

func bookAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		book := scheduling.BookRequest{}
		var ok bool
		if book.PatientID, ok = parseUUID(w, req.PatientID, "patient_id"); !ok {
			return
		}
		if book.DoctorBranchID, ok = parseUUID(w, req.DoctorBranchID, "doctor_branch_id"); !ok {
			return
		}
		if book.SlotID, ok = parseUUID(w, req.SlotID, "slot_id"); !ok {
			return
		}
		if req.FamilyMemberID != nil {
			memberID, ok := parseUUID(w, *req.FamilyMemberID, "family_member_id")
			if !ok {
				return
			}
			book.FamilyMemberID = &memberID
		}

		appt, err := svc.Book(r.Context(), book)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			ID:           appt.ID,
			BookingID:    appt.BookingID,
			GlobalID:     appt.GlobalID,
			Status:       string(appt.Status),
			Serial:       appt.Serial,
			ExpectedTime: appt.ExpectedTime,
		})
	}
}

func getAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func rescheduleAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		slotID, ok := parseUUID(w, req.SlotID, "slot_id")
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, slotID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{ID: appt.ID, Status: string(appt.Status)})
	}
}

func checkInHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return statusTransitionHandler(svc.CheckIn, log)
}

func completeHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return statusTransitionHandler(svc.Complete, log)
}

func statusTransitionHandler(apply func(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error), log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{ID: appt.ID, Status: string(appt.Status)})
	}
}

func liveQueueHandler(svc QueueService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, ok := parseUUID(w, chi.URLParam(r, "branchID"), "branch_id")
		if !ok {
			return
		}
		q := r.URL.Query()

		sortBy, err := scheduling.ParseQueueSort(q.Get("sort_by"))
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		date, ok := parseOptionalDate(w, q.Get("date"))
		if !ok {
			return
		}
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
				return
			}
		}

		board, err := svc.LiveQueue(r.Context(), scheduling.QueueQuery{
			BranchID: branchID,
			Date:     date,
			SortBy:   sortBy,
			Limit:    limit,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}

func queueCountHandler(svc QueueService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, ok := parseUUID(w, chi.URLParam(r, "branchID"), "branch_id")
		if !ok {
			return
		}
		date, ok := parseOptionalDate(w, r.URL.Query().Get("date"))
		if !ok {
			return
		}

		n, err := svc.QueueCount(r.Context(), branchID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := QueueCountResponse{BranchID: branchID, Count: n}
		if date != nil {
			resp.Date = date.Format(time.DateOnly)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func saveScheduleHandler(svc ScheduleService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorBranchID, ok := parseUUID(w, chi.URLParam(r, "id"), "doctor_branch_id")
		if !ok {
			return
		}
		day, err := parseWeekday(chi.URLParam(r, "day"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
			return
		}
		var req WeeklyScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ws := &scheduling.WeeklySchedule{
			DoctorBranchID:      doctorBranchID,
			DayOfWeek:           day,
			Active:              req.Active == nil || *req.Active,
			ReleaseType:         req.ReleaseType,
			ReleaseBefore:       req.ReleaseBefore,
			ReleaseTime:         req.ReleaseTime,
			SlotDurationMinutes: req.SlotDurationMinutes,
			SlotCapacity:        req.SlotCapacity,
			Ranges:              req.Ranges,
		}
		if err := svc.SaveWeeklySchedule(r.Context(), ws); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ws)
	}
}

func addBreakHandler(svc ScheduleService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorBranchID, ok := parseUUID(w, chi.URLParam(r, "id"), "doctor_branch_id")
		if !ok {
			return
		}
		var req BreakRequest
		if !decodeBody(w, r, &req) {
			return
		}
		day, err := parseWeekday(req.DayOfWeek)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
			return
		}

		b := &scheduling.ScheduleBreak{
			DoctorBranchID: doctorBranchID,
			DayOfWeek:      day,
			Start:          req.Start,
			End:            req.End,
			Description:    req.Description,
		}
		if err := svc.AddBreak(r.Context(), b); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func addLeaveHandler(svc ScheduleService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorBranchID, ok := parseUUID(w, chi.URLParam(r, "id"), "doctor_branch_id")
		if !ok {
			return
		}
		var req LeaveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		start, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		end, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be YYYY-MM-DD")
			return
		}

		l := &scheduling.Leave{DoctorBranchID: doctorBranchID, StartDate: start, EndDate: end, Reason: req.Reason}
		if err := svc.AddLeave(r.Context(), l); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

func approveLeaveHandler(svc ScheduleService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		l, err := svc.ApproveLeave(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func generateSlotsHandler(svc SlotService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorBranchID, ok := parseUUID(w, chi.URLParam(r, "id"), "doctor_branch_id")
		if !ok {
			return
		}
		var req GenerateSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Generate(r.Context(), doctorBranchID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func listSlotsHandler(svc SlotService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorBranchID, ok := parseUUID(w, chi.URLParam(r, "id"), "doctor_branch_id")
		if !ok {
			return
		}
		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Slots(r.Context(), doctorBranchID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if slots == nil {
			slots = []scheduling.Slot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundCode(err), err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, "duplicate_booking", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		log.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func notFoundCode(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, scheduling.ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, scheduling.ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, scheduling.ErrFamilyMemberNotFound):
		return "family_member_not_found"
	case errors.Is(err, scheduling.ErrDoctorBranchNotFound):
		return "doctor_branch_not_found"
	case errors.Is(err, scheduling.ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, scheduling.ErrLeaveNotFound):
		return "leave_not_found"
	default:
		return "not_found"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalDate(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

// parseWeekday accepts a day name ("monday", "mon") or its number, Sunday = 0.
func parseWeekday(raw string) (time.Weekday, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day %d out of range 0-6", n)
		}
		return time.Weekday(n), nil
	}
	name := strings.ToLower(raw)
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
