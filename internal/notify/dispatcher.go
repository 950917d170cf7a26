package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

// Dispatcher turns booking events into patient emails. With a reminder gap
// the reminders go out in the background so the consumer is not held up.
type Dispatcher struct {
	sender      EmailSender
	reminderGap time.Duration
	log         *zap.Logger
	pending     sync.WaitGroup
}

func NewDispatcher(sender EmailSender, reminderGap time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, reminderGap: reminderGap, log: logging.OrNop(log)}
}

// Handle matches events.Handler.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypeBookingCreated, events.TypeBookingCancelled:
	default:
		return nil
	}

	p, err := ev.Booking()
	if err != nil {
		return err
	}
	if p.Email == "" {
		d.log.Info("no patient email, skipping notification",
			zap.String("type", ev.Type),
			zap.String("patient", p.PatientName),
		)
		return nil
	}

	if ev.Type == events.TypeBookingCancelled {
		return d.sender.Send(ctx, CancellationEmail(p))
	}

	if err := d.sender.Send(ctx, ConfirmationEmail(p)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	if d.reminderGap <= 0 {
		return d.sendReminders(ctx, p)
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		if err := d.sendReminders(ctx, p); err != nil {
			d.log.Warn("reminders incomplete", zap.String("patient", p.PatientName), zap.Error(err))
		}
	}()
	return nil
}

func (d *Dispatcher) sendReminders(ctx context.Context, p events.BookingPayload) error {
	var errs []error
	for _, msg := range Reminders(p) {
		if d.reminderGap > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.reminderGap):
			}
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.Warn("reminder not sent", zap.String("subject", msg.Subject), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until scheduled reminders are sent or abandoned.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}
