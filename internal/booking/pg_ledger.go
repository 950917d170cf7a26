package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

const recordColumns = `id, first_name, last_name, dob, is_new, email, phone,
		       insurance_company, member_id, group_number,
		       slot_date, slot_time, doctor, duration_minutes,
		       status, cancel_reason, form_filled, created_at, updated_at`

// PgLedger stores bookings in Postgres. The per-slot Redis lock serializes
// competing callers and the partial unique index on live bookings is the
// backstop when the lock is bypassed or has expired.
type PgLedger struct {
	db     db.DBTX
	locker redisclient.Locker
	log    *zap.Logger
}

// NewPgLedger builds a ledger. locker may be nil, in which case the unique
// index alone decides contention.
func NewPgLedger(conn db.DBTX, locker redisclient.Locker, log *zap.Logger) *PgLedger {
	return &PgLedger{db: conn, locker: locker, log: logging.OrNop(log)}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var status string

	err := row.Scan(
		&r.ID,
		&r.Patient.FirstName,
		&r.Patient.LastName,
		&r.Patient.DateOfBirth,
		&r.Patient.IsNew,
		&r.Patient.Email,
		&r.Patient.Phone,
		&r.Patient.InsuranceCompany,
		&r.Patient.MemberID,
		&r.Patient.GroupNumber,
		&r.Slot.Date,
		&r.Slot.Time,
		&r.Slot.Doctor,
		&r.Duration,
		&status,
		&r.CancelReason,
		&r.FormFilled,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	r.Status = Status(status)
	return &r, nil
}

func (l *PgLedger) TryBook(ctx context.Context, rec *Record) (bool, error) {
	booked := false

	commit := func(ctx context.Context) error {
		taken, err := l.IsOccupied(ctx, rec.Slot)
		if err != nil {
			return err
		}
		if taken {
			return nil
		}

		id := rec.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		p := rec.Patient

		row := l.db.QueryRow(ctx, `
			INSERT INTO bookings (id, first_name, last_name, dob, is_new, email, phone,
			                      insurance_company, member_id, group_number,
			                      slot_date, slot_time, doctor, duration_minutes,
			                      status, cancel_reason, form_filled, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			        'scheduled', '', false, now(), now())
			RETURNING `+recordColumns,
			id, p.FirstName, p.LastName, p.DateOfBirth, p.IsNew, p.Email, p.Phone,
			p.InsuranceCompany, p.MemberID, p.GroupNumber,
			rec.Slot.Date, rec.Slot.Time, rec.Slot.Doctor, rec.Duration)

		created, err := scanRecord(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				l.log.Info("slot taken by concurrent booking", zap.String("slot", rec.Slot.String()))
				return nil
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		*rec = *created
		booked = true
		return nil
	}

	var err error
	if l.locker != nil {
		err = l.locker.WithSlotLock(ctx, rec.Slot.String(), commit)
	} else {
		err = commit(ctx)
	}

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		l.log.Info("slot lock held by another booking", zap.String("slot", rec.Slot.String()))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return booked, nil
}

func (l *PgLedger) IsOccupied(ctx context.Context, k slot.Key) (bool, error) {
	var taken bool
	err := l.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE slot_date = $1 AND slot_time = $2 AND doctor = $3
			  AND status <> 'cancelled'
		)
	`, k.Date, k.Time, k.Doctor).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return taken, nil
}

func (l *PgLedger) Occupied(ctx context.Context, date string) (map[slot.Key]bool, error) {
	rows, err := l.db.Query(ctx, `
		SELECT slot_date, slot_time, doctor
		FROM bookings
		WHERE status <> 'cancelled'
		  AND ($1 = '' OR slot_date = $1)
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list occupied slots: %w", err)
	}
	defer rows.Close()

	out := make(map[slot.Key]bool)
	for rows.Next() {
		var k slot.Key
		if err := rows.Scan(&k.Date, &k.Time, &k.Doctor); err != nil {
			return nil, err
		}
		out[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *PgLedger) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := l.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (l *PgLedger) List(ctx context.Context, f ListFilter) ([]Record, error) {
	f = f.normalized()

	rows, err := l.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM bookings
		WHERE ($1 = '' OR slot_date = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4
	`, f.Date, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *PgLedger) Confirm(ctx context.Context, id uuid.UUID) (*Record, error) {
	return l.transition(ctx, id, StatusConfirmed, "")
}

func (l *PgLedger) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Record, error) {
	if reason == "" {
		reason = DefaultCancelReason
	}
	return l.transition(ctx, id, StatusCancelled, reason)
}

func (l *PgLedger) MarkFormFilled(ctx context.Context, id uuid.UUID) (*Record, error) {
	return l.transition(ctx, id, StatusFormSubmitted, "")
}

// transition moves a booking with a conditional UPDATE on its current status,
// so a concurrent change turns into ErrInvalidStatusTransition.
func (l *PgLedger) transition(ctx context.Context, id uuid.UUID, to Status, reason string) (*Record, error) {
	current, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, ErrInvalidStatusTransition
	}

	row := l.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    cancel_reason = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancel_reason END,
		    form_filled = form_filled OR $2 = 'form_submitted',
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+recordColumns,
		id, string(to), string(current.Status), reason)

	updated, err := scanRecord(row)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrInvalidStatusTransition
	}
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	return updated, nil
}
