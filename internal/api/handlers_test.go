package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/metrics"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/policy"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

const day = "2025-03-03"

func newTestRouter(t *testing.T, checks ...Check) http.Handler {
	t.Helper()
	from, err := time.Parse(slot.DateLayout, day)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := scheduling.NewService(scheduling.Deps{
		Catalog:   slot.NewMemoryCatalog(),
		Ledger:    booking.NewMemoryLedger(),
		Rules:     rules.NewMemoryStore(),
		Directory: patient.NewMemoryDirectory(),
		Metrics:   metrics.NewSchedulingMetrics(reg),
	}, policy.Default(), scheduling.Options{MaxOfferedSlots: 5})

	return NewRouter(RouterConfig{
		Service:  svc,
		Health:   NewHealthHandler(checks, "test", "v0"),
		Gatherer: reg,
		Grid:     slot.Grid{Doctors: []string{"Dr. Smith", "Dr. Lee"}, Days: 1, StartHour: 9, EndHour: 12, From: from},
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var jane = map[string]any{
	"first_name": "Jane", "last_name": "Doe", "dob": "1990-01-01", "is_new": true, "email": "jane@example.com",
}

func TestBookingFlowOverHTTP(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/admin/slots/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, decodeBody[GenerateSlotsResponse](t, rec).Created)

	rec = do(t, h, http.MethodPost, "/slots/search", map[string]any{"profile": jane, "date": day})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	offer := decodeBody[scheduling.Offer](t, rec)
	assert.Len(t, offer.Slots, 5)
	assert.Equal(t, 6, offer.Total)
	assert.Equal(t, 60, offer.Duration)

	first := offer.Slots[0]
	rec = do(t, h, http.MethodPost, "/bookings", map[string]any{
		"profile": jane, "date": first.Date, "time": first.Time, "doctor": first.Doctor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[BookingResponse](t, rec)
	assert.Equal(t, "Scheduled", created.StatusLabel)
	assert.Equal(t, 60, created.Duration)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodPost, "/bookings", map[string]any{
		"profile": jane, "date": first.Date, "time": first.Time, "doctor": first.Doctor,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/bookings/"+created.ID.String()+"/form-filled", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[BookingResponse](t, rec).FormFilled)

	rec = do(t, h, http.MethodPost, "/bookings/"+created.ID.String()+"/cancel", CancelRequest{Reason: "travel"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Cancelled - travel", decodeBody[BookingResponse](t, rec).StatusLabel)

	rec = do(t, h, http.MethodPost, "/bookings/"+created.ID.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/bookings?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]BookingResponse](t, rec), 1)

	rec = do(t, h, http.MethodPost, "/patients/lookup", map[string]any{"first_name": "jane", "last_name": "DOE", "dob": "1990-01-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lookup := decodeBody[LookupResponse](t, rec)
	assert.False(t, lookup.IsNew)
	assert.Equal(t, 30, lookup.Duration)
	assert.Equal(t, "jane@example.com", lookup.Profile.Email)
}

func TestValidationErrorsListFields(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/bookings", map[string]any{
		"profile": map[string]any{"first_name": "J", "last_name": "Doe", "dob": "1990/01/01"},
		"date":    day, "time": "09:00", "doctor": "Dr. Smith",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Error)
	assert.Contains(t, resp.Fields, "first_name")
	assert.Contains(t, resp.Fields, "dob")

	req := httptest.NewRequest(http.MethodPost, "/slots/search", bytes.NewBufferString("{"))
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)

	rec = do(t, h, http.MethodGet, "/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/bookings/7d0b0c5e-6f1e-4a35-9d62-3c4f6a1b2c3d", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/rules", map[string]any{
		"rule": map[string]any{"condition": map[string]any{"patient_type": "new"}, "action": map[string]any{"duration": 45}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/rules", map[string]any{"text": "New patients see Dr. Lee"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "rule_translation", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/rules", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]rules.Entry](t, rec)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Rule.Action.Duration)
	assert.Equal(t, 45, *entries[0].Rule.Action.Duration)

	rec = do(t, h, http.MethodPost, "/patients/lookup", jane)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decodeBody[LookupResponse](t, rec)
	assert.Equal(t, 45, lookup.Duration)
	assert.Equal(t, "rule", lookup.DurationSource)

	rec = do(t, h, http.MethodDelete, "/rules/0", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/rules/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/rules/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotAvailabilityEndpoint(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/admin/slots/generate", GenerateSlotsRequest{Days: 1}).Code)

	rec := do(t, h, http.MethodPost, "/admin/slots/availability", SlotAvailabilityRequest{Date: day, Time: "09:00", Doctor: "Dr. Lee"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/bookings", map[string]any{"profile": jane, "date": day, "time": "09:00", "doctor": "Dr. Lee"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/slots/generate", GenerateSlotsRequest{From: "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(t,
		Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("refused") }},
	)

	rec := do(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["redis"])

	down := newTestRouter(t, Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return errors.New("refused") }})
	rec = do(t, down, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decodeBody[ReadinessResponse](t, rec).Status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/admin/slots/generate", nil)
	do(t, h, http.MethodPost, "/bookings", map[string]any{"profile": jane, "date": day, "time": "09:00", "doctor": "Dr. Lee"})

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clinic_scheduling_booking_attempts_total{outcome="booked"} 1`)
}
