package policy

// Table maps the patient type to the default visit length in minutes.
type Table struct {
	NewPatientMinutes       int
	ReturningPatientMinutes int
}

func Default() Table {
	return Table{NewPatientMinutes: 60, ReturningPatientMinutes: 30}
}

func (t Table) DurationFor(isNew bool) int {
	if isNew {
		return t.NewPatientMinutes
	}
	return t.ReturningPatientMinutes
}
