package notify

import (
	"fmt"
	"strings"

	"github.com/hackgods/clinic-slot-scheduling/internal/events"
)

func firstName(p events.BookingPayload) string {
	first, _, _ := strings.Cut(p.PatientName, " ")
	return first
}

func ConfirmationEmail(p events.BookingPayload) EmailMessage {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment is confirmed on %s at %s with %s (%d minutes).\n"+
			"Please complete the intake form before your visit.\n\nThanks.",
		firstName(p), p.Date, p.Time, p.Doctor, p.Duration,
	)
	return EmailMessage{
		To:      p.Email,
		ToName:  p.PatientName,
		Subject: fmt.Sprintf("Appointment Confirmation - %s %s", p.Date, p.Time),
		Body:    body,
	}
}

// Reminders returns the three follow-ups sent after a booking, in order.
func Reminders(p events.BookingPayload) []EmailMessage {
	name := firstName(p)
	bodies := []string{
		fmt.Sprintf("Hello %s, your appointment is on %s at %s with %s.", name, p.Date, p.Time, p.Doctor),
		fmt.Sprintf("Hi %s, please confirm you filled your intake form before your appointment.", name),
		"Final reminder! Please confirm your visit or reply with reason for cancellation.",
	}

	out := make([]EmailMessage, 0, len(bodies))
	for i, b := range bodies {
		out = append(out, EmailMessage{
			To:      p.Email,
			ToName:  p.PatientName,
			Subject: fmt.Sprintf("Reminder %d: appointment on %s", i+1, p.Date),
			Body:    b,
		})
	}
	return out
}

func CancellationEmail(p events.BookingPayload) EmailMessage {
	return EmailMessage{
		To:      p.Email,
		ToName:  p.PatientName,
		Subject: fmt.Sprintf("Appointment Cancelled - %s %s", p.Date, p.Time),
		Body: fmt.Sprintf("Hi %s,\n\nYour appointment on %s at %s with %s was cancelled (%s).",
			firstName(p), p.Date, p.Time, p.Doctor, p.Reason),
	}
}
