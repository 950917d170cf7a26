package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

const maxBodyBytes = 1 << 20

// Scheduler is the part of scheduling.Service the handlers call.
type Scheduler interface {
	ResolveProfile(ctx context.Context, p patient.Profile) (patient.Profile, error)
	EffectiveDuration(ctx context.Context, p patient.Profile) (int, string, error)
	ListAvailableSlots(ctx context.Context, q scheduling.SlotQuery) (*scheduling.Offer, error)
	BookSlot(ctx context.Context, req scheduling.BookingRequest) (*booking.Record, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Record, error)
	ListBookings(ctx context.Context, f booking.ListFilter) ([]booking.Record, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*booking.Record, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*booking.Record, error)
	MarkFormFilled(ctx context.Context, id uuid.UUID) (*booking.Record, error)

	ListRules(ctx context.Context) ([]rules.Entry, error)
	AddRule(ctx context.Context, r rules.Rule) (rules.Entry, error)
	AddRuleFromText(ctx context.Context, text string) (rules.Entry, error)
	DeleteRule(ctx context.Context, index int) error

	GenerateSlots(ctx context.Context, g slot.Grid) (int, error)
	SetSlotAvailability(ctx context.Context, k slot.Key, available bool) error
}

type handlers struct {
	svc  Scheduler
	grid slot.Grid
	log  *zap.Logger
}

func (h *handlers) lookupPatient(w http.ResponseWriter, r *http.Request) {
	var p patient.Profile
	if !decode(w, r, &p) {
		return
	}

	resolved, err := h.svc.ResolveProfile(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	duration, source, err := h.svc.EffectiveDuration(r.Context(), resolved)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LookupResponse{
		Profile:        resolved,
		IsNew:          resolved.IsNew,
		Duration:       duration,
		DurationSource: source,
	})
}

func (h *handlers) searchSlots(w http.ResponseWriter, r *http.Request) {
	var q scheduling.SlotQuery
	if !decode(w, r, &q) {
		return
	}

	offer, err := h.svc.ListAvailableSlots(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req scheduling.BookingRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.svc.BookSlot(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(rec))
}

func (h *handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := booking.ListFilter{
		Date:   q.Get("date"),
		Status: booking.Status(q.Get("status")),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	recs, err := h.svc.ListBookings(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]BookingResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toBookingResponse(&recs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(rec))
}

func (h *handlers) confirmBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.ConfirmBooking(r.Context(), id)
	h.writeTransition(w, r, rec, err)
}

func (h *handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CancelBooking(r.Context(), id, req.Reason)
	h.writeTransition(w, r, rec, err)
}

func (h *handlers) markFormFilled(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.MarkFormFilled(r.Context(), id)
	h.writeTransition(w, r, rec, err)
}

func (h *handlers) writeTransition(w http.ResponseWriter, r *http.Request, rec *booking.Record, err error) {
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(rec))
}

func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListRules(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []rules.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		entry rules.Entry
		err   error
	)
	switch {
	case req.Rule != nil:
		entry, err = h.svc.AddRule(r.Context(), *req.Rule)
	case req.Text != "":
		entry, err = h.svc.AddRuleFromText(r.Context(), req.Text)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request_body", "either rule or text is required")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rule_index", "index must be an integer")
		return
	}
	if err := h.svc.DeleteRule(r.Context(), index); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) generateSlots(w http.ResponseWriter, r *http.Request) {
	var req GenerateSlotsRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	g := h.grid
	if len(req.Doctors) > 0 {
		g.Doctors = req.Doctors
	}
	if req.Days > 0 {
		g.Days = req.Days
	}
	if req.StartHour != nil {
		g.StartHour = *req.StartHour
	}
	if req.EndHour != nil {
		g.EndHour = *req.EndHour
	}
	if req.From != "" {
		from, err := time.Parse(slot.DateLayout, req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be a YYYY-MM-DD date")
			return
		}
		g.From = from
	}

	if _, err := g.Slots(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grid", err.Error())
		return
	}

	n, err := h.svc.GenerateSlots(r.Context(), g)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateSlotsResponse{Created: n})
}

func (h *handlers) setSlotAvailability(w http.ResponseWriter, r *http.Request) {
	var req SlotAvailabilityRequest
	if !decode(w, r, &req) {
		return
	}
	k := slot.Key{Date: req.Date, Time: req.Time, Doctor: req.Doctor}
	if err := h.svc.SetSlotAvailability(r.Context(), k, req.Available); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the service error kind onto a status code.
func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := scheduling.KindOf(err)
	switch kind {
	case scheduling.KindValidation:
		resp := ErrorResponse{Error: string(kind), Details: err.Error()}
		var verr *patient.ValidationError
		var kerr *slot.KeyError
		switch {
		case errors.As(err, &verr):
			resp.Fields = verr.Fields
		case errors.As(err, &kerr):
			resp.Fields = kerr.Fields
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case scheduling.KindSlotUnavailable:
		writeError(w, http.StatusConflict, string(kind), "slot is no longer available, search again and pick another slot")
	case scheduling.KindRuleTranslation:
		writeError(w, http.StatusUnprocessableEntity, string(kind), err.Error())
	case scheduling.KindNotFound:
		writeError(w, http.StatusNotFound, string(kind), err.Error())
	case scheduling.KindInvalidTransition:
		writeError(w, http.StatusConflict, string(kind), err.Error())
	default:
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, string(scheduling.KindPersistence), "internal error")
	}
}

func bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
