package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

var ErrRuleNotFound = errors.New("rule not found")

// Entry is a stored rule with its position in evaluation order.
type Entry struct {
	Index     int       `json:"index"`
	Rule      Rule      `json:"rule"`
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps rules in insertion order, which is also evaluation order.
// Indexes are positional: deleting a rule shifts the ones after it.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, r Rule) (Entry, error)
	Delete(ctx context.Context, index int) error
}

// Rules extracts the evaluation list from entries.
func Rules(entries []Entry) []Rule {
	out := make([]Rule, len(entries))
	for i, e := range entries {
		out[i] = e.Rule
		out[i].RawText = e.Raw
	}
	return out
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore(initial ...Rule) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range initial {
		s.entries = append(s.entries, Entry{Rule: r, Raw: r.RawText, CreatedAt: time.Now()})
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		e.Index = i
		out[i] = e
	}
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, r Rule) (Entry, error) {
	if err := r.Validate(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{Index: len(s.entries), Rule: r, Raw: r.RawText, CreatedAt: time.Now()}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) Delete(_ context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.entries) {
		return ErrRuleNotFound
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	return nil
}

// PgStore persists rules in the rules table; the serial id fixes the order.
type PgStore struct {
	db db.DBTX
}

func NewPgStore(conn db.DBTX) *PgStore {
	return &PgStore{db: conn}
}

func (s *PgStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT condition, action, raw_text, created_at
		FROM rules
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		e.Index = len(result)
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		condition, action []byte
		raw               *string
		e                 Entry
	)
	if err := row.Scan(&condition, &action, &raw, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(condition) > 0 {
		if err := json.Unmarshal(condition, &e.Rule.Condition); err != nil {
			return nil, fmt.Errorf("decode rule condition: %w", err)
		}
	}
	if err := json.Unmarshal(action, &e.Rule.Action); err != nil {
		return nil, fmt.Errorf("decode rule action: %w", err)
	}
	if raw != nil {
		e.Raw = *raw
		e.Rule.RawText = *raw
	}
	return &e, nil
}

func (s *PgStore) Append(ctx context.Context, r Rule) (Entry, error) {
	if err := r.Validate(); err != nil {
		return Entry{}, err
	}

	cond := r.Condition
	if cond == nil {
		cond = Condition{}
	}
	condition, err := json.Marshal(cond)
	if err != nil {
		return Entry{}, fmt.Errorf("encode rule condition: %w", err)
	}
	action, err := json.Marshal(r.Action)
	if err != nil {
		return Entry{}, fmt.Errorf("encode rule action: %w", err)
	}

	var raw *string
	if r.RawText != "" {
		raw = &r.RawText
	}

	var (
		index     int
		createdAt time.Time
	)
	// the count does not see the row inserted by the CTE, so it is the new
	// rule's position
	err = s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO rules (condition, action, raw_text, created_at)
			VALUES ($1, $2, $3, now())
			RETURNING id, created_at
		)
		SELECT (SELECT count(*) FROM rules)::int, created_at FROM inserted
	`, condition, action, raw).Scan(&index, &createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert rule: %w", err)
	}

	return Entry{Index: index, Rule: r, Raw: r.RawText, CreatedAt: createdAt}, nil
}

func (s *PgStore) Delete(ctx context.Context, index int) error {
	if index < 0 {
		return ErrRuleNotFound
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM rules
		WHERE id = (SELECT id FROM rules ORDER BY id OFFSET $1 LIMIT 1)
	`, index)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
