package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const (
	ActionAssignDoctor = "assign_doctor"
	ActionBlockDoctor  = "block_doctor"
	ActionPreferDoctor = "prefer_doctor"
	ActionDuration     = "duration"

	ConditionPatientType = "patient_type"
)

// Condition maps a profile field to the value it must match. Values are
// strings, numbers or booleans as decoded from JSON.
type Condition map[string]any

// Action holds the recognized effects of a rule. An empty doctor name
// means the effect is absent. Keys with no built-in effect are kept in
// Extra so they survive a round trip.
type Action struct {
	AssignDoctor string
	BlockDoctor  string
	PreferDoctor string
	Duration     *int
	Extra        map[string]any
}

// Rule is an admin-authored condition/action pair.
type Rule struct {
	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`
	RawText   string    `json:"-"`
}

func (a Action) IsZero() bool {
	return a.AssignDoctor == "" && a.BlockDoctor == "" && a.PreferDoctor == "" &&
		a.Duration == nil && len(a.Extra) == 0
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

// Map renders the action in its flat key/value form.
func (a Action) Map() map[string]any {
	m := make(map[string]any, len(a.Extra)+4)
	for k, v := range a.Extra {
		m[k] = v
	}
	if a.AssignDoctor != "" {
		m[ActionAssignDoctor] = a.AssignDoctor
	}
	if a.BlockDoctor != "" {
		m[ActionBlockDoctor] = a.BlockDoctor
	}
	if a.PreferDoctor != "" {
		m[ActionPreferDoctor] = a.PreferDoctor
	}
	if a.Duration != nil {
		m[ActionDuration] = *a.Duration
	}
	return m
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ActionFromMap(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ActionFromMap sorts a decoded action object into recognized effects and
// Extra. A duration that is not a positive number of minutes up to one day
// keeps its raw value in Extra and has no effect.
func ActionFromMap(raw map[string]any) (Action, error) {
	var a Action
	for k, v := range raw {
		switch k {
		case ActionAssignDoctor, ActionBlockDoctor, ActionPreferDoctor:
			s, ok := v.(string)
			if !ok {
				return Action{}, fmt.Errorf("action %s must be a string, got %T", k, v)
			}
			s = strings.TrimSpace(s)
			switch k {
			case ActionAssignDoctor:
				a.AssignDoctor = s
			case ActionBlockDoctor:
				a.BlockDoctor = s
			default:
				a.PreferDoctor = s
			}
		case ActionDuration:
			if n, ok := toMinutes(v); ok {
				a.Duration = &n
				continue
			}
			a.setExtra(k, v)
		default:
			a.setExtra(k, v)
		}
	}
	return a, nil
}

func (a *Action) setExtra(k string, v any) {
	if a.Extra == nil {
		a.Extra = make(map[string]any)
	}
	a.Extra[k] = v
}

// MaxDurationMinutes caps a rule duration at one day.
const MaxDurationMinutes = 24 * 60

// toMinutes accepts whole or fractional minutes in (0, MaxDurationMinutes].
// Fractions are truncated.
func toMinutes(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		f = float64(i)
	default:
		return 0, false
	}
	if math.IsNaN(f) || f < 1 || f > MaxDurationMinutes {
		return 0, false
	}
	return int(f), true
}

// Validate rejects rules with no effect at all or condition values of
// unsupported types.
func (r Rule) Validate() error {
	if r.Action.IsZero() {
		return fmt.Errorf("rule has no action")
	}
	if d := r.Action.Duration; d != nil && (*d <= 0 || *d > MaxDurationMinutes) {
		return fmt.Errorf("duration must be between 1 and %d minutes, got %d", MaxDurationMinutes, *d)
	}
	for k, v := range r.Condition {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("condition has an empty field name")
		}
		switch v.(type) {
		case string, bool, float64, int, int64, json.Number:
		default:
			return fmt.Errorf("condition %s has unsupported value type %T", k, v)
		}
	}
	return nil
}

// String renders the rule compactly with sorted keys, for logs and the CLI.
func (r Rule) String() string {
	return "if " + renderMap(r.Condition) + " then " + renderMap(r.Action.Map())
}

func renderMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
