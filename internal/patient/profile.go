package patient

import "strings"

// Profile is the snapshot of a patient used for one scheduling operation.
type Profile struct {
	FirstName   string `json:"first_name" validate:"required,person_name"`
	LastName    string `json:"last_name" validate:"required,person_name"`
	DateOfBirth string `json:"dob" validate:"required,dob"`
	IsNew       bool   `json:"is_new"`

	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`

	InsuranceCompany string `json:"insurance_company,omitempty" validate:"max=100"`
	MemberID         string `json:"member_id,omitempty" validate:"max=64"`
	GroupNumber      string `json:"group_number,omitempty" validate:"max=64"`
}

func (p Profile) Type() string {
	if p.IsNew {
		return "new"
	}
	return "returning"
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Field returns the value a rule condition key refers to. Contact and
// insurance details are consulted before identity fields. Unknown keys
// report ok=false.
func (p Profile) Field(key string) (any, bool) {
	switch key {
	case "email":
		return p.Email, true
	case "phone":
		return p.Phone, true
	case "insurance_company", "insurance_carrier", "carrier":
		return p.InsuranceCompany, true
	case "member_id":
		return p.MemberID, true
	case "group_number":
		return p.GroupNumber, true
	}

	switch key {
	case "first_name":
		return p.FirstName, true
	case "last_name":
		return p.LastName, true
	case "dob", "date_of_birth":
		return p.DateOfBirth, true
	case "is_new":
		return p.IsNew, true
	}

	return nil, false
}
