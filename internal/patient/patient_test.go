package patient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() Profile {
	return Profile{
		FirstName:        "Jane",
		LastName:         "O'Neil",
		DateOfBirth:      "1990-04-12",
		Email:            "jane@example.com",
		InsuranceCompany: "BlueCross",
	}
}

func TestValidateAcceptsBothDOBFormats(t *testing.T) {
	p := validProfile()
	require.NoError(t, p.Validate())

	p.DateOfBirth = "12/04/1990"
	require.NoError(t, p.Validate())
}

func TestValidateReportsFields(t *testing.T) {
	p := Profile{FirstName: "7ane", LastName: "", DateOfBirth: "April 1990", Email: "not-an-email"}

	err := p.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Contains(t, verr.Fields, "first_name")
	assert.Equal(t, "required", verr.Fields["last_name"])
	assert.Contains(t, verr.Fields, "dob")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, err.Error(), "dob: must be YYYY-MM-DD or DD/MM/YYYY")
}

func TestFieldLookup(t *testing.T) {
	p := validProfile()
	p.IsNew = true

	v, ok := p.Field("insurance_company")
	require.True(t, ok)
	assert.Equal(t, "BlueCross", v)

	v, ok = p.Field("dob")
	require.True(t, ok)
	assert.Equal(t, "1990-04-12", v)

	v, ok = p.Field("is_new")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = p.Field("age_gt")
	assert.False(t, ok)

	assert.Equal(t, "new", p.Type())
	assert.Equal(t, "Jane O'Neil", p.FullName())
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	_, err := d.Find(ctx, "jane", "o'neil", "1990-04-12")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = d.Register(ctx, validProfile())
	require.NoError(t, err)

	found, err := d.Find(ctx, "JANE", " o'neil ", "1990-04-12")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", found.Profile.Email)
	assert.False(t, found.Profile.IsNew)

	_, err = d.Find(ctx, "jane", "o'neil", "1990-04-13")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func patientColumns() []string {
	return []string{"id", "first_name", "last_name", "dob", "email", "phone", "insurance_company", "member_id", "group_number", "created_at", "updated_at"}
}

func TestPgDirectoryFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := NewPgDirectory(mock)
	now := time.Now()
	email := "jane@example.com"
	id := uuid.New()

	mock.ExpectQuery("SELECT id, first_name").
		WithArgs("Jane", "Doe", "1990-04-12").
		WillReturnRows(pgxmock.NewRows(patientColumns()).
			AddRow(id, "Jane", "Doe", "1990-04-12", &email, nil, nil, nil, nil, now, now))

	p, err := d.Find(context.Background(), " Jane ", "Doe", "1990-04-12")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "jane@example.com", p.Profile.Email)
	assert.Empty(t, p.Profile.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDirectoryFindMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := NewPgDirectory(mock)
	mock.ExpectQuery("SELECT id, first_name").
		WithArgs("Jane", "Doe", "1990-04-12").
		WillReturnRows(pgxmock.NewRows(patientColumns()))

	_, err = d.Find(context.Background(), "Jane", "Doe", "1990-04-12")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
