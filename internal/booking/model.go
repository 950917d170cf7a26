package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

type Status string

const (
	StatusScheduled     Status = "scheduled"
	StatusConfirmed     Status = "confirmed"
	StatusFormSubmitted Status = "form_submitted"
	StatusCancelled     Status = "cancelled"
)

const DefaultCancelReason = "No reason"

// allowedFrom lists, per target status, the statuses a record may move from.
// Cancelled is terminal.
var allowedFrom = map[Status][]Status{
	StatusConfirmed:     {StatusScheduled, StatusFormSubmitted},
	StatusFormSubmitted: {StatusScheduled, StatusConfirmed},
	StatusCancelled:     {StatusScheduled, StatusConfirmed, StatusFormSubmitted},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, from := range allowedFrom[to] {
		if from == s {
			return true
		}
	}
	return false
}

// Live reports whether a record in this status occupies its slot.
func (s Status) Live() bool {
	return s != StatusCancelled
}

// Record is a committed booking. It is created once and only ever changes
// status; records are never deleted.
type Record struct {
	ID           uuid.UUID
	Patient      patient.Profile
	Slot         slot.Key
	Duration     int
	Status       Status
	CancelReason string
	FormFilled   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusLabel renders the status the way the admin dashboard shows it.
func (r Record) StatusLabel() string {
	switch r.Status {
	case StatusScheduled:
		return "Scheduled"
	case StatusConfirmed:
		return "Confirmed"
	case StatusFormSubmitted:
		return "Form Submitted"
	case StatusCancelled:
		return "Cancelled - " + r.CancelReason
	default:
		return string(r.Status)
	}
}

// apply mutates r into the target status. Callers check CanTransitionTo first.
func (r *Record) apply(to Status, reason string, now time.Time) {
	r.Status = to
	switch to {
	case StatusCancelled:
		if reason == "" {
			reason = DefaultCancelReason
		}
		r.CancelReason = reason
	case StatusFormSubmitted:
		r.FormFilled = true
	}
	r.UpdatedAt = now
}

func prepare(r *Record, now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Status = StatusScheduled
	r.CancelReason = ""
	r.FormFilled = false
	r.CreatedAt = now
	r.UpdatedAt = now
}

type ListFilter struct {
	Date   string
	Status Status
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
