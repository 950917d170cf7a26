package slot

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrSlotNotFound = errors.New("slot not found")

// Catalog owns the slot grid and its availability flags. It knows nothing
// about bookings; occupancy is layered on top by the scheduling service.
type Catalog interface {
	// Generate seeds the grid. Existing slots keep their availability flag.
	Generate(ctx context.Context, g Grid) (int, error)
	ListAvailable(ctx context.Context, f Filter) ([]Slot, error)
	Get(ctx context.Context, k Key) (*Slot, error)
	SetAvailability(ctx context.Context, k Key, available bool) error
}

// MemoryCatalog is a Catalog held in process memory.
type MemoryCatalog struct {
	mu    sync.RWMutex
	slots map[Key]bool
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{slots: make(map[Key]bool)}
}

func (c *MemoryCatalog) Generate(_ context.Context, g Grid) (int, error) {
	grid, err := g.Slots()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, s := range grid {
		if _, ok := c.slots[s.Key()]; ok {
			continue
		}
		c.slots[s.Key()] = s.Available
		added++
	}
	return added, nil
}

func (c *MemoryCatalog) ListAvailable(_ context.Context, f Filter) ([]Slot, error) {
	c.mu.RLock()
	out := make([]Slot, 0, len(c.slots))
	for k, available := range c.slots {
		s := Slot{Date: k.Date, Time: k.Time, Doctor: k.Doctor, Available: available}
		if available && f.matches(s) {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()

	Sort(out)
	return out, nil
}

func (c *MemoryCatalog) Get(_ context.Context, k Key) (*Slot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	available, ok := c.slots[k]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &Slot{Date: k.Date, Time: k.Time, Doctor: k.Doctor, Available: available}, nil
}

func (c *MemoryCatalog) SetAvailability(_ context.Context, k Key, available bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[k]; !ok {
		return ErrSlotNotFound
	}
	c.slots[k] = available
	return nil
}

// Sort orders slots by date, time, then doctor.
func Sort(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Doctor < b.Doctor
	})
}
