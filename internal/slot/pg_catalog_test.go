package slot

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPgCatalogGenerate(t *testing.T) {
	mock := newMock(t)
	c := NewPgCatalog(mock)

	g := Grid{Doctors: []string{"Smith"}, Days: 1, StartHour: 9, EndHour: 11, From: jan1}
	mock.ExpectExec("INSERT INTO slots").
		WithArgs([]string{"2024-01-01", "2024-01-01"}, []string{"09:00", "10:00"}, []string{"Smith", "Smith"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	added, err := c.Generate(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCatalogListAvailable(t *testing.T) {
	mock := newMock(t)
	c := NewPgCatalog(mock)

	rows := pgxmock.NewRows([]string{"slot_date", "slot_time", "doctor", "available"}).
		AddRow("2024-01-01", "09:00", "Johnson", true).
		AddRow("2024-01-01", "09:00", "Smith", true)
	mock.ExpectQuery("SELECT slot_date").WithArgs("2024-01-01", "").WillReturnRows(rows)

	slots, err := c.ListAvailable(context.Background(), Filter{Date: "2024-01-01"})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Johnson", slots[0].Doctor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCatalogGetMissing(t *testing.T) {
	mock := newMock(t)
	c := NewPgCatalog(mock)

	k := Key{Date: "2024-01-01", Time: "09:00", Doctor: "Smith"}
	mock.ExpectQuery("SELECT slot_date").
		WithArgs(k.Date, k.Time, k.Doctor).
		WillReturnRows(pgxmock.NewRows([]string{"slot_date", "slot_time", "doctor", "available"}))

	_, err := c.Get(context.Background(), k)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestPgCatalogSetAvailabilityMissing(t *testing.T) {
	mock := newMock(t)
	c := NewPgCatalog(mock)

	k := Key{Date: "2024-01-01", Time: "09:00", Doctor: "Smith"}
	mock.ExpectExec("UPDATE slots").
		WithArgs(k.Date, k.Time, k.Doctor, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := c.SetAvailability(context.Background(), k, false)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
