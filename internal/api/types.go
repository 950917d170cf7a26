package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
)

type LookupResponse struct {
	Profile        patient.Profile `json:"profile"`
	IsNew          bool            `json:"is_new"`
	Duration       int             `json:"duration"`
	DurationSource string          `json:"duration_source"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// CreateRuleRequest carries either a structured rule or a sentence to translate.
type CreateRuleRequest struct {
	Rule *rules.Rule `json:"rule,omitempty"`
	Text string      `json:"text,omitempty"`
}

type GenerateSlotsRequest struct {
	Doctors   []string `json:"doctors,omitempty"`
	Days      int      `json:"days,omitempty"`
	StartHour *int     `json:"start_hour,omitempty"`
	EndHour   *int     `json:"end_hour,omitempty"`
	From      string   `json:"from,omitempty"`
}

type GenerateSlotsResponse struct {
	Created int `json:"created"`
}

type SlotAvailabilityRequest struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Doctor    string `json:"doctor"`
	Available bool   `json:"available"`
}

type BookingResponse struct {
	ID           uuid.UUID       `json:"id"`
	Patient      patient.Profile `json:"patient"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Doctor       string          `json:"doctor"`
	Duration     int             `json:"duration"`
	Status       string          `json:"status"`
	StatusLabel  string          `json:"status_label"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	FormFilled   bool            `json:"form_filled"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toBookingResponse(r *booking.Record) BookingResponse {
	return BookingResponse{
		ID:           r.ID,
		Patient:      r.Patient,
		Date:         r.Slot.Date,
		Time:         r.Slot.Time,
		Doctor:       r.Slot.Doctor,
		Duration:     r.Duration,
		Status:       string(r.Status),
		StatusLabel:  r.StatusLabel(),
		CancelReason: r.CancelReason,
		FormFilled:   r.FormFilled,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
