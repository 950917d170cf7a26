package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	TypeBookingCreated    = "booking.created"
	TypeBookingConfirmed  = "booking.confirmed"
	TypeBookingCancelled  = "booking.cancelled"
	TypeBookingFormFilled = "booking.form_filled"
	TypeRuleAdded         = "rule.added"
	TypeRuleDeleted       = "rule.deleted"
)

type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	BookingID *uuid.UUID      `json:"booking_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingPayload is what downstream consumers need to contact the patient.
type BookingPayload struct {
	PatientName string `json:"patient_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	IsNew       bool   `json:"is_new"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Doctor      string `json:"doctor"`
	Duration    int    `json:"duration"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

func New(typ string, bookingID *uuid.UUID, payload any) (Event, error) {
	ev := Event{
		ID:        uuid.New(),
		Type:      typ,
		BookingID: bookingID,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

func (e Event) Booking() (BookingPayload, error) {
	var p BookingPayload
	if len(e.Payload) == 0 {
		return p, errors.New("event has no payload")
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode booking payload: %w", err)
	}
	return p, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout hands each event to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
