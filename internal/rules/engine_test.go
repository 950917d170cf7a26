package rules

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

func intp(n int) *int { return &n }

func sampleSlots() []slot.Slot {
	return []slot.Slot{
		{Date: "2024-01-01", Time: "09:00", Doctor: "Dr. Johnson", Available: true},
		{Date: "2024-01-01", Time: "09:00", Doctor: "Dr. Smith", Available: true},
		{Date: "2024-01-01", Time: "10:00", Doctor: "Dr. Johnson", Available: true},
		{Date: "2024-01-01", Time: "10:00", Doctor: "Dr. Smith", Available: true},
		{Date: "2024-01-01", Time: "11:00", Doctor: "Dr. Lee", Available: true},
	}
}

func doctors(slots []slot.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Doctor
	}
	return out
}

func newPatient() patient.Profile {
	return patient.Profile{FirstName: "Ana", LastName: "Diaz", DateOfBirth: "1980-02-03", IsNew: true, InsuranceCompany: "BlueCross", GroupNumber: "0042"}
}

func TestEvaluateEmptyCandidates(t *testing.T) {
	got, dur := Evaluate(newPatient(), nil, nil)
	assert.Empty(t, got)
	assert.Nil(t, dur)
}

func TestEvaluateNoRulesKeepsOrder(t *testing.T) {
	in := sampleSlots()
	got, dur := Evaluate(newPatient(), in, nil)
	assert.Equal(t, in, got)
	assert.Nil(t, dur)
}

func TestEvaluateDurationPrecedence(t *testing.T) {
	rules := []Rule{
		{Condition: Condition{}, Action: Action{Duration: intp(45)}},
		{Condition: Condition{"patient_type": "new"}, Action: Action{Duration: intp(60)}},
	}

	_, dur := Evaluate(newPatient(), sampleSlots(), rules)
	require.NotNil(t, dur)
	assert.Equal(t, 60, *dur)

	// the later rule does not match a returning patient, so the first stands
	returning := newPatient()
	returning.IsNew = false
	_, dur = Evaluate(returning, sampleSlots(), rules)
	require.NotNil(t, dur)
	assert.Equal(t, 45, *dur)
}

func TestEvaluateSubstringIsCaseInsensitive(t *testing.T) {
	rules := []Rule{{Condition: Condition{"insurance_company": "blue"}, Action: Action{AssignDoctor: "smith"}}}

	got, _ := Evaluate(newPatient(), sampleSlots(), rules)
	assert.Equal(t, []string{"Dr. Smith", "Dr. Smith"}, doctors(got))
}

func TestEvaluateAssignThenBlockComposes(t *testing.T) {
	rules := []Rule{
		{Action: Action{AssignDoctor: "Smith"}},
		{Action: Action{BlockDoctor: "Smith"}},
	}

	got, _ := Evaluate(newPatient(), sampleSlots(), rules)
	assert.Empty(t, got)
}

func TestEvaluateActionOrderWithinRule(t *testing.T) {
	// assign runs before block inside a single rule
	rules := []Rule{{Action: Action{AssignDoctor: "Dr.", BlockDoctor: "Lee", PreferDoctor: "Smith", Duration: intp(20)}}}

	got, dur := Evaluate(newPatient(), sampleSlots(), rules)
	assert.Equal(t, []string{"Dr. Smith", "Dr. Smith", "Dr. Johnson", "Dr. Johnson"}, doctors(got))
	require.NotNil(t, dur)
	assert.Equal(t, 20, *dur)
}

func TestEvaluatePreferIsStable(t *testing.T) {
	rules := []Rule{{Action: Action{PreferDoctor: "johnson"}}}

	got, _ := Evaluate(newPatient(), sampleSlots(), rules)
	require.Len(t, got, 5)
	assert.Equal(t, "09:00", got[0].Time)
	assert.Equal(t, "10:00", got[1].Time)
	assert.Equal(t, []string{"Dr. Johnson", "Dr. Johnson", "Dr. Smith", "Dr. Smith", "Dr. Lee"}, doctors(got))
	assert.Equal(t, "09:00", got[2].Time)
	assert.Equal(t, "10:00", got[3].Time)
}

func TestEvaluateLastPreferDecidesOrder(t *testing.T) {
	rules := []Rule{
		{Action: Action{PreferDoctor: "Lee"}},
		{Action: Action{PreferDoctor: "Smith"}},
	}

	got, _ := Evaluate(newPatient(), sampleSlots(), rules)
	assert.Equal(t, []string{"Dr. Smith", "Dr. Smith", "Dr. Lee", "Dr. Johnson", "Dr. Johnson"}, doctors(got))
}

func TestEvaluateEmptyDoctorNameIsNoAction(t *testing.T) {
	candidates := sampleSlots()
	res, d := Evaluate(newPatient(), candidates, []Rule{
		{Action: Action{AssignDoctor: "", BlockDoctor: "", PreferDoctor: "", Extra: map[string]any{"note": "x"}}},
	})
	assert.Equal(t, candidates, res)
	assert.Nil(t, d)

	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"block_doctor": "  ", "assign_doctor": ""}`), &a))
	res, _ = Evaluate(newPatient(), candidates, []Rule{{Action: a}})
	assert.Equal(t, candidates, res)
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	in := sampleSlots()
	snapshot := sampleSlots()
	rules := []Rule{{Action: Action{BlockDoctor: "Johnson", PreferDoctor: "Lee"}}}

	_, _ = Evaluate(newPatient(), in, rules)
	assert.Equal(t, snapshot, in)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	rules := []Rule{
		{Condition: Condition{"patient_type": "new"}, Action: Action{PreferDoctor: "Lee", Duration: intp(50)}},
		{Condition: Condition{"insurance_company": "cross"}, Action: Action{BlockDoctor: "Johnson"}},
	}

	first, d1 := Evaluate(newPatient(), sampleSlots(), rules)
	for i := 0; i < 10; i++ {
		again, d2 := Evaluate(newPatient(), sampleSlots(), rules)
		assert.Equal(t, first, again)
		assert.Equal(t, *d1, *d2)
	}
}

func TestMatches(t *testing.T) {
	p := newPatient()

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty condition", Condition{}, true},
		{"patient type new", Condition{"patient_type": "new"}, true},
		{"patient type returning", Condition{"patient_type": "returning"}, false},
		{"patient type non string", Condition{"patient_type": true}, false},
		{"unknown field", Condition{"age_gt": float64(65)}, false},
		{"substring", Condition{"last_name": "DI"}, true},
		{"substring miss", Condition{"last_name": "Smith"}, false},
		{"numeric coercion", Condition{"group_number": float64(42)}, true},
		{"numeric mismatch", Condition{"group_number": float64(43)}, false},
		{"numeric against text", Condition{"first_name": float64(1)}, false},
		{"bool field", Condition{"is_new": true}, true},
		{"conjunction", Condition{"patient_type": "new", "insurance_company": "aetna"}, false},
		{"identity fallback", Condition{"dob": "1980-02"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(p, tt.cond))
		})
	}
}

func TestEvaluateTraceReportsMatches(t *testing.T) {
	rules := []Rule{
		{Condition: Condition{"patient_type": "returning"}, Action: Action{Duration: intp(15)}},
		{Condition: Condition{"insurance_company": "blue"}, Action: Action{BlockDoctor: "Lee"}},
		{Action: Action{Extra: map[string]any{"restrict_to_insurance": "Aetna"}}},
	}

	res := EvaluateTrace(newPatient(), sampleSlots(), rules)
	assert.Equal(t, []int{1, 2}, res.Matched)
	assert.Nil(t, res.Duration)
	assert.Len(t, res.Slots, 4)
}
