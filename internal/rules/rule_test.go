package rules

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionDecodeSortsKnownAndExtra(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"condition": {"patient_type": "new"},
		"action": {"assign_doctor": " Dr. Smith ", "duration": "45", "restrict_to_insurance": "Aetna"}
	}`), &r)
	require.NoError(t, err)

	assert.Equal(t, "Dr. Smith", r.Action.AssignDoctor)
	require.NotNil(t, r.Action.Duration)
	assert.Equal(t, 45, *r.Action.Duration)
	assert.Equal(t, map[string]any{"restrict_to_insurance": "Aetna"}, r.Action.Extra)
	assert.Equal(t, "new", r.Condition["patient_type"])
}

func TestActionUnparseableDurationIsPreserved(t *testing.T) {
	cases := map[string]string{
		"words":    `{"duration": "an hour"}`,
		"negative": `{"duration": -15}`,
		"zero":     `{"duration": 0}`,
		"fraction": `{"duration": 0.5}`,
		"too long": `{"duration": 1441}`,
		"overflow": `{"duration": 1e20}`,
		"neg text": `{"duration": "-30"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var a Action
			require.NoError(t, json.Unmarshal([]byte(raw), &a))

			assert.Nil(t, a.Duration)
			assert.Contains(t, a.Extra, "duration")

			out, err := json.Marshal(a)
			require.NoError(t, err)
			assert.JSONEq(t, raw, string(out))
		})
	}
}

func TestActionDurationBounds(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"duration": "1440"}`), &a))
	require.NotNil(t, a.Duration)
	assert.Equal(t, MaxDurationMinutes, *a.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"duration": 45.9}`), &a))
	require.NotNil(t, a.Duration)
	assert.Equal(t, 45, *a.Duration)
}

func TestActionRejectsNonStringDoctor(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"block_doctor": 7}`), &a)
	assert.Error(t, err)
}

func TestActionEncodeIsFlat(t *testing.T) {
	a := Action{PreferDoctor: "Lee", Duration: intp(30), Extra: map[string]any{"note": "x"}}
	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefer_doctor": "Lee", "duration": 30, "note": "x"}`, string(out))
}

func TestRuleValidate(t *testing.T) {
	assert.Error(t, Rule{Condition: Condition{"patient_type": "new"}}.Validate())
	assert.Error(t, Rule{Condition: Condition{"x": []any{1}}, Action: Action{Duration: intp(5)}}.Validate())
	assert.Error(t, Rule{Condition: Condition{" ": "x"}, Action: Action{Duration: intp(5)}}.Validate())
	assert.NoError(t, Rule{Action: Action{Extra: map[string]any{"custom": true}}}.Validate())
	assert.Error(t, Rule{Action: Action{Duration: intp(-15)}}.Validate())
	assert.Error(t, Rule{Action: Action{Duration: intp(0)}}.Validate())
	assert.Error(t, Rule{Action: Action{Duration: intp(MaxDurationMinutes + 1)}}.Validate())
	assert.NoError(t, Rule{Action: Action{Duration: intp(MaxDurationMinutes)}}.Validate())
}

func TestRuleString(t *testing.T) {
	r := Rule{Condition: Condition{"patient_type": "new", "insurance_company": "Blue"}, Action: Action{Duration: intp(60)}}
	assert.Equal(t, "if {insurance_company=Blue, patient_type=new} then {duration=60}", r.String())
}
