package scheduling

import (
	"errors"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

// ErrSlotUnavailable is the normal negative answer to a booking attempt.
// Callers should fetch a fresh offer and pick another slot.
var ErrSlotUnavailable = errors.New("slot is no longer available")

type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation"
	KindSlotUnavailable   Kind = "slot_unavailable"
	KindRuleTranslation   Kind = "rule_translation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindPersistence       Kind = "persistence"
)

// KindOf classifies an error returned by the service.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var verr *patient.ValidationError
	var kerr *slot.KeyError
	var rerr *ruleError
	switch {
	case errors.As(err, &verr), errors.As(err, &kerr), errors.As(err, &rerr):
		return KindValidation
	case errors.Is(err, ErrSlotUnavailable):
		return KindSlotUnavailable
	case errors.Is(err, rules.ErrTranslation):
		return KindRuleTranslation
	case errors.Is(err, booking.ErrRecordNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, slot.ErrSlotNotFound):
		return KindNotFound
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		return KindInvalidTransition
	default:
		return KindPersistence
	}
}
