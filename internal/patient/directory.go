package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

var ErrPatientNotFound = errors.New("patient not found")

type Patient struct {
	ID        uuid.UUID
	Profile   Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Directory answers whether a patient has been seen before.
type Directory interface {
	// Find matches first and last name case-insensitively and the date of birth exactly.
	Find(ctx context.Context, firstName, lastName, dob string) (*Patient, error)
	Register(ctx context.Context, p Profile) (*Patient, error)
}

type PgDirectory struct {
	db db.DBTX
}

func NewPgDirectory(conn db.DBTX) *PgDirectory {
	return &PgDirectory{db: conn}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email, phone, carrier, memberID, group *string

	err := row.Scan(
		&p.ID,
		&p.Profile.FirstName,
		&p.Profile.LastName,
		&p.Profile.DateOfBirth,
		&email,
		&phone,
		&carrier,
		&memberID,
		&group,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Profile.Email = deref(email)
	p.Profile.Phone = deref(phone)
	p.Profile.InsuranceCompany = deref(carrier)
	p.Profile.MemberID = deref(memberID)
	p.Profile.GroupNumber = deref(group)
	return &p, nil
}

func (d *PgDirectory) Find(ctx context.Context, firstName, lastName, dob string) (*Patient, error) {
	row := d.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, dob, email, phone, insurance_company, member_id, group_number, created_at, updated_at
		FROM patients
		WHERE lower(first_name) = lower($1)
		  AND lower(last_name) = lower($2)
		  AND dob = $3
		LIMIT 1
	`, strings.TrimSpace(firstName), strings.TrimSpace(lastName), strings.TrimSpace(dob))
	return scanPatient(row)
}

func (d *PgDirectory) Register(ctx context.Context, p Profile) (*Patient, error) {
	row := d.db.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, dob, email, phone, insurance_company, member_id, group_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (lower(first_name), lower(last_name), dob) DO UPDATE
		SET email = COALESCE(EXCLUDED.email, patients.email),
		    phone = COALESCE(EXCLUDED.phone, patients.phone),
		    updated_at = now()
		RETURNING id, first_name, last_name, dob, email, phone, insurance_company, member_id, group_number, created_at, updated_at
	`, uuid.New(), p.FirstName, p.LastName, p.DateOfBirth,
		nullable(p.Email), nullable(p.Phone), nullable(p.InsuranceCompany), nullable(p.MemberID), nullable(p.GroupNumber))

	created, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return created, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MemoryDirectory is a Directory for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{patients: make(map[string]*Patient)}
}

func identityKey(firstName, lastName, dob string) string {
	return strings.ToLower(strings.TrimSpace(firstName)) + "|" +
		strings.ToLower(strings.TrimSpace(lastName)) + "|" +
		strings.TrimSpace(dob)
}

func (d *MemoryDirectory) Find(_ context.Context, firstName, lastName, dob string) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.patients[identityKey(firstName, lastName, dob)]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *MemoryDirectory) Register(_ context.Context, prof Profile) (*Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := identityKey(prof.FirstName, prof.LastName, prof.DateOfBirth)
	now := time.Now()
	if existing, ok := d.patients[key]; ok {
		if prof.Email != "" {
			existing.Profile.Email = prof.Email
		}
		if prof.Phone != "" {
			existing.Profile.Phone = prof.Phone
		}
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	prof.IsNew = false
	p := &Patient{ID: uuid.New(), Profile: prof, CreatedAt: now, UpdatedAt: now}
	d.patients[key] = p
	cp := *p
	return &cp, nil
}
