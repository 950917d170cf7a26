package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

type PgCatalog struct {
	db db.DBTX
}

func NewPgCatalog(conn db.DBTX) *PgCatalog {
	return &PgCatalog{db: conn}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.Date, &s.Time, &s.Doctor, &s.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (c *PgCatalog) Generate(ctx context.Context, g Grid) (int, error) {
	grid, err := g.Slots()
	if err != nil {
		return 0, err
	}

	dates := make([]string, len(grid))
	times := make([]string, len(grid))
	doctors := make([]string, len(grid))
	for i, s := range grid {
		dates[i], times[i], doctors[i] = s.Date, s.Time, s.Doctor
	}

	tag, err := c.db.Exec(ctx, `
		INSERT INTO slots (slot_date, slot_time, doctor, available, created_at, updated_at)
		SELECT d, t, doc, true, now(), now()
		FROM unnest($1::text[], $2::text[], $3::text[]) AS g(d, t, doc)
		ON CONFLICT (slot_date, slot_time, doctor) DO NOTHING
	`, dates, times, doctors)
	if err != nil {
		return 0, fmt.Errorf("generate slot grid: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (c *PgCatalog) ListAvailable(ctx context.Context, f Filter) ([]Slot, error) {
	rows, err := c.db.Query(ctx, `
		SELECT slot_date, slot_time, doctor, available
		FROM slots
		WHERE available
		  AND ($1 = '' OR slot_date = $1)
		  AND ($2 = '' OR doctor = $2)
		ORDER BY slot_date, slot_time, doctor
	`, f.Date, f.Doctor)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *PgCatalog) Get(ctx context.Context, k Key) (*Slot, error) {
	row := c.db.QueryRow(ctx, `
		SELECT slot_date, slot_time, doctor, available
		FROM slots
		WHERE slot_date = $1 AND slot_time = $2 AND doctor = $3
	`, k.Date, k.Time, k.Doctor)
	return scanSlot(row)
}

func (c *PgCatalog) SetAvailability(ctx context.Context, k Key, available bool) error {
	tag, err := c.db.Exec(ctx, `
		UPDATE slots
		SET available = $4,
		    updated_at = now()
		WHERE slot_date = $1 AND slot_time = $2 AND doctor = $3
	`, k.Date, k.Time, k.Doctor, available)
	if err != nil {
		return fmt.Errorf("set slot availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}
