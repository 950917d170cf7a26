package patient

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z\s\-']{1,49}$`)
	dobRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4})$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("person_name", validatePersonName)
	validate.RegisterValidation("dob", validateDOB)
}

func validatePersonName(fl validator.FieldLevel) bool {
	return nameRe.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateDOB(fl validator.FieldLevel) bool {
	return dobRe.MatchString(strings.TrimSpace(fl.Field().String()))
}

// ValidationError carries per-field messages the caller can show back to
// the patient for correction.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid patient profile: " + strings.Join(parts, "; ")
}

// Validate checks identity and contact fields.
func (p Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonName(fe.StructField())] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "person_name":
		return "must start with a letter and contain only letters, spaces, hyphens or apostrophes"
	case "dob":
		return "must be YYYY-MM-DD or DD/MM/YYYY"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

func jsonName(field string) string {
	switch field {
	case "FirstName":
		return "first_name"
	case "LastName":
		return "last_name"
	case "DateOfBirth":
		return "dob"
	case "InsuranceCompany":
		return "insurance_company"
	case "MemberID":
		return "member_id"
	case "GroupNumber":
		return "group_number"
	default:
		return strings.ToLower(field)
	}
}
