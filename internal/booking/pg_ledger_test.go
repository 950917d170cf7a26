package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

var recordCols = []string{
	"id", "first_name", "last_name", "dob", "is_new", "email", "phone",
	"insurance_company", "member_id", "group_number",
	"slot_date", "slot_time", "doctor", "duration_minutes",
	"status", "cancel_reason", "form_filled", "created_at", "updated_at",
}

func recordRows(id uuid.UUID, status string, reason string, formFilled bool) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(recordCols).AddRow(
		id, "Jane", "Doe", "1990-01-01", true, "jane@example.com", "",
		"BlueCross", "M1", "G1",
		nineAM.Date, nineAM.Time, nineAM.Doctor, 60,
		status, reason, formFilled, now, now,
	)
}

type passLocker struct{ keys []string }

func (p *passLocker) WithSlotLock(ctx context.Context, key string, fn func(context.Context) error) error {
	p.keys = append(p.keys, key)
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestPgLedgerTryBookCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	locker := &passLocker{}
	l := NewPgLedger(mock, locker, nil)
	id := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(nineAM.Date, nineAM.Time, nineAM.Doctor).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(recordRows(id, "scheduled", "", false))

	rec := newRecord("Jane", nineAM)
	ok, err := l.TryBook(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, StatusScheduled, rec.Status)
	assert.Equal(t, "BlueCross", rec.Patient.InsuranceCompany)
	assert.Equal(t, []string{nineAM.String()}, locker.keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTryBookTakenSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := l.TryBook(context.Background(), newRecord("Jane", nineAM))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTryBookUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	ok, err := l.TryBook(context.Background(), newRecord("Jane", nineAM))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTryBookLockBusy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, busyLocker{}, nil)

	ok, err := l.TryBook(context.Background(), newRecord("Jane", nineAM))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTryBookStorageFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("connection reset"))

	ok, err := l.TryBook(context.Background(), newRecord("Jane", nineAM))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPgLedgerCancel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, first_name").WithArgs(id).
		WillReturnRows(recordRows(id, "confirmed", "", false))
	mock.ExpectQuery("UPDATE bookings").
		WithArgs(id, "cancelled", "confirmed", DefaultCancelReason).
		WillReturnRows(recordRows(id, "cancelled", DefaultCancelReason, false))

	rec, err := l.Cancel(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)
	assert.Equal(t, DefaultCancelReason, rec.CancelReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTransitionRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, first_name").WithArgs(id).
		WillReturnRows(recordRows(id, "cancelled", "moved", false))

	_, err = l.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerTransitionLostRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, first_name").WithArgs(id).
		WillReturnRows(recordRows(id, "scheduled", "", false))
	mock.ExpectQuery("UPDATE bookings").
		WillReturnRows(pgxmock.NewRows(recordCols))

	_, err = l.MarkFormFilled(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLedgerGetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, first_name").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(recordCols))

	_, err = l.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPgLedgerOccupied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPgLedger(mock, nil, nil)
	mock.ExpectQuery("SELECT slot_date, slot_time, doctor").WithArgs("2025-03-03").
		WillReturnRows(pgxmock.NewRows([]string{"slot_date", "slot_time", "doctor"}).
			AddRow(nineAM.Date, nineAM.Time, nineAM.Doctor))

	occ, err := l.Occupied(context.Background(), "2025-03-03")
	require.NoError(t, err)
	assert.True(t, occ[nineAM])
	assert.Len(t, occ, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
