package rules

import (
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

// Result is the outcome of evaluating a rule list.
type Result struct {
	Slots    []slot.Slot
	Duration *int
	// Matched holds the positions of the rules whose condition held.
	Matched []int
}

// Evaluate applies rules in order to the candidate slots for one patient.
// Filters compose; the last matching duration wins. Inputs are not modified.
func Evaluate(profile patient.Profile, candidates []slot.Slot, rules []Rule) ([]slot.Slot, *int) {
	res := EvaluateTrace(profile, candidates, rules)
	return res.Slots, res.Duration
}

// EvaluateTrace is Evaluate that also reports which rules matched.
func EvaluateTrace(profile patient.Profile, candidates []slot.Slot, rules []Rule) Result {
	filtered := make([]slot.Slot, len(candidates))
	copy(filtered, candidates)

	var res Result
	for i, r := range rules {
		if !Matches(profile, r.Condition) {
			continue
		}
		res.Matched = append(res.Matched, i)

		a := r.Action
		if a.AssignDoctor != "" {
			filtered = keep(filtered, a.AssignDoctor, true)
		}
		if a.BlockDoctor != "" {
			filtered = keep(filtered, a.BlockDoctor, false)
		}
		if a.PreferDoctor != "" {
			preferDoctor(filtered, a.PreferDoctor)
		}
		if a.Duration != nil {
			d := *a.Duration
			res.Duration = &d
		}
	}

	res.Slots = filtered
	return res
}

// Matches reports whether every condition entry holds for the profile.
// A field the profile does not have is a non-match, not an error.
func Matches(profile patient.Profile, cond Condition) bool {
	for k, want := range cond {
		if k == ConditionPatientType {
			s, ok := want.(string)
			if !ok || s != profile.Type() {
				return false
			}
			continue
		}

		got, ok := profile.Field(k)
		if !ok || got == nil {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	gs, gotStr := got.(string)
	ws, wantStr := want.(string)
	if gotStr && wantStr {
		return strings.Contains(strings.ToLower(gs), strings.ToLower(ws))
	}

	if wn, ok := number(want); ok {
		switch g := got.(type) {
		case string:
			gn, err := strconv.ParseFloat(strings.TrimSpace(g), 64)
			return err == nil && gn == wn
		default:
			gn, ok := number(g)
			return ok && gn == wn
		}
	}

	return got == want
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func doctorContains(s slot.Slot, name string) bool {
	return strings.Contains(strings.ToLower(s.Doctor), strings.ToLower(name))
}

// keep filters in place, keeping slots whose doctor contains name when
// want is true and dropping them otherwise.
func keep(slots []slot.Slot, name string, want bool) []slot.Slot {
	out := slots[:0]
	for _, s := range slots {
		if doctorContains(s, name) == want {
			out = append(out, s)
		}
	}
	return out
}

func preferDoctor(slots []slot.Slot, name string) {
	sort.SliceStable(slots, func(i, j int) bool {
		return doctorContains(slots[i], name) && !doctorContains(slots[j], name)
	})
}
