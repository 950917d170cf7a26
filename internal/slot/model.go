package slot

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is one bookable (date, time, doctor) unit of capacity.
type Slot struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Doctor    string `json:"doctor"`
	Available bool   `json:"available"`
}

func (s Slot) Key() Key {
	return Key{Date: s.Date, Time: s.Time, Doctor: s.Doctor}
}

// Key identifies a slot and is the unit of occupancy in the booking ledger.
type Key struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Doctor string `json:"doctor"`
}

// String is used as the lock key, so it must be stable for a normalized Key.
func (k Key) String() string {
	return k.Date + "|" + k.Time + "|" + k.Doctor
}

// KeyError lists the malformed parts of a slot key.
type KeyError struct {
	Fields map[string]string
}

func (e *KeyError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range []string{"date", "time", "doctor"} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return "invalid slot: " + strings.Join(parts, "; ")
}

// Normalize validates the key and returns it in canonical form
// (zero padded date and time, trimmed doctor).
func (k Key) Normalize() (Key, error) {
	fields := map[string]string{}

	d, err := time.Parse(DateLayout, strings.TrimSpace(k.Date))
	if err != nil {
		fields["date"] = fmt.Sprintf("%q is not a YYYY-MM-DD date", k.Date)
	}
	t, err := time.Parse(TimeLayout, strings.TrimSpace(k.Time))
	if err != nil {
		fields["time"] = fmt.Sprintf("%q is not a HH:MM time", k.Time)
	}
	doctor := strings.TrimSpace(k.Doctor)
	if doctor == "" {
		fields["doctor"] = "required"
	}

	if len(fields) > 0 {
		return Key{}, &KeyError{Fields: fields}
	}
	return Key{Date: d.Format(DateLayout), Time: t.Format(TimeLayout), Doctor: doctor}, nil
}

// Filter narrows ListAvailable. Empty fields match everything.
type Filter struct {
	Date   string
	Doctor string
}

func (f Filter) matches(s Slot) bool {
	if f.Date != "" && s.Date != f.Date {
		return false
	}
	if f.Doctor != "" && s.Doctor != f.Doctor {
		return false
	}
	return true
}

// Grid describes the hourly availability seeded by Generate.
type Grid struct {
	Doctors   []string
	Days      int
	StartHour int
	EndHour   int // exclusive
	From      time.Time
}

// Slots expands the grid in date, time, doctor order.
func (g Grid) Slots() ([]Slot, error) {
	if g.Days <= 0 {
		return nil, fmt.Errorf("grid days must be positive, got %d", g.Days)
	}
	if g.StartHour < 0 || g.EndHour > 24 || g.StartHour >= g.EndHour {
		return nil, fmt.Errorf("invalid grid hours %d-%d", g.StartHour, g.EndHour)
	}

	var doctors []string
	for _, d := range g.Doctors {
		if d = strings.TrimSpace(d); d != "" {
			doctors = append(doctors, d)
		}
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("grid needs at least one doctor")
	}

	from := g.From
	if from.IsZero() {
		from = time.Now()
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]Slot, 0, g.Days*(g.EndHour-g.StartHour)*len(doctors))
	for day := 0; day < g.Days; day++ {
		date := start.AddDate(0, 0, day).Format(DateLayout)
		for hour := g.StartHour; hour < g.EndHour; hour++ {
			tm := fmt.Sprintf("%02d:00", hour)
			for _, doc := range doctors {
				out = append(out, Slot{Date: date, Time: tm, Doctor: doc, Available: true})
			}
		}
	}
	return out, nil
}
