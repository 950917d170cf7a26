package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

var (
	ErrRecordNotFound          = errors.New("booking not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Ledger is the source of truth for committed bookings.
type Ledger interface {
	// TryBook commits rec if its slot has no live booking. A taken slot
	// returns false with no error and no state change. On success rec is
	// filled with the stored values.
	TryBook(ctx context.Context, rec *Record) (bool, error)
	IsOccupied(ctx context.Context, k slot.Key) (bool, error)
	// Occupied returns the live keys, optionally for one date.
	Occupied(ctx context.Context, date string) (map[slot.Key]bool, error)

	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, f ListFilter) ([]Record, error)

	Confirm(ctx context.Context, id uuid.UUID) (*Record, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*Record, error)
	MarkFormFilled(ctx context.Context, id uuid.UUID) (*Record, error)
}

// MemoryLedger keeps bookings in memory behind one mutex, which makes the
// occupancy check and the insert a single step.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	order   []uuid.UUID
	live    map[slot.Key]uuid.UUID
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[uuid.UUID]*Record),
		live:    make(map[slot.Key]uuid.UUID),
		now:     time.Now,
	}
}

func (l *MemoryLedger) TryBook(_ context.Context, rec *Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.live[rec.Slot]; taken {
		return false, nil
	}

	prepare(rec, l.now())
	stored := *rec
	l.records[stored.ID] = &stored
	l.order = append(l.order, stored.ID)
	l.live[stored.Slot] = stored.ID
	return true, nil
}

func (l *MemoryLedger) IsOccupied(_ context.Context, k slot.Key) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, taken := l.live[k]
	return taken, nil
}

func (l *MemoryLedger) Occupied(_ context.Context, date string) (map[slot.Key]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[slot.Key]bool, len(l.live))
	for k := range l.live {
		if date == "" || k.Date == date {
			out[k] = true
		}
	}
	return out, nil
}

func (l *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *MemoryLedger) List(_ context.Context, f ListFilter) ([]Record, error) {
	f = f.normalized()

	l.mu.Lock()
	var matched []Record
	for _, id := range l.order {
		r := l.records[id]
		if f.Date != "" && r.Slot.Date != f.Date {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		matched = append(matched, *r)
	}
	l.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if f.Offset >= len(matched) {
		return nil, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

func (l *MemoryLedger) Confirm(ctx context.Context, id uuid.UUID) (*Record, error) {
	return l.transition(id, StatusConfirmed, "")
}

func (l *MemoryLedger) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Record, error) {
	return l.transition(id, StatusCancelled, reason)
}

func (l *MemoryLedger) MarkFormFilled(ctx context.Context, id uuid.UUID) (*Record, error) {
	return l.transition(id, StatusFormSubmitted, "")
}

func (l *MemoryLedger) transition(id uuid.UUID, to Status, reason string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !r.Status.CanTransitionTo(to) {
		return nil, ErrInvalidStatusTransition
	}

	r.apply(to, reason, l.now())
	if !to.Live() && l.live[r.Slot] == r.ID {
		delete(l.live, r.Slot)
	}

	cp := *r
	return &cp, nil
}
