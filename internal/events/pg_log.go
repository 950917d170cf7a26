package events

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

// PgLog appends events to the event_logs audit table.
type PgLog struct {
	db db.DBTX
}

func NewPgLog(conn db.DBTX) *PgLog {
	return &PgLog{db: conn}
}

func (l *PgLog) Publish(ctx context.Context, ev Event) error {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.Type, ev.BookingID, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
