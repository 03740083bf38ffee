// Package form holds the wizard's input types and their validation rules.
// Validation never touches session state; callers decide what to persist.
package form

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field names used in FieldError.Field and by the presentation layer.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldPlace   = "place"
	FieldAge     = "age"
	FieldGeneral = "general_symptoms"
	FieldSkin    = "skin_symptoms"
	FieldImage   = "image"
)

const (
	MaxNameLength  = 40
	MaxPlaceLength = 25
	MinAge         = 1
	MaxAge         = 120
	PhoneLength    = 10
)

var indianMobile = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// PersonalInfo is the identity data collected on the personal info page.
// Age 0 means "not provided".
type PersonalInfo struct {
	Name  string `json:"name" validate:"required,max=40"`
	Phone string `json:"phone" validate:"required,indian_mobile"`
	Place string `json:"place" validate:"required,max=25"`
	Age   int    `json:"age" validate:"required,min=1,max=120"`
}

// Normalize trims surrounding whitespace from the text fields.
func (p PersonalInfo) Normalize() PersonalInfo {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Place = strings.TrimSpace(p.Place)
	return p
}

// FieldError is a single user-facing validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result reports the outcome of a validation pass.
type Result struct {
	OK     bool         `json:"ok"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Merge combines two results; the merged result is OK only if both are.
func (r Result) Merge(other Result) Result {
	return Result{
		OK:     r.OK && other.OK,
		Errors: append(append([]FieldError(nil), r.Errors...), other.Errors...),
	}
}

// Err returns a *ValidationError for a failed result and nil otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ValidationError{Fields: r.Errors}
}

// ValidationError carries every field failure of one submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "indian_mobile", func(fl validator.FieldLevel) bool {
		return indianMobile.MatchString(fl.Field().String())
	})
	mustRegister(v, "general_symptom", func(fl validator.FieldLevel) bool {
		return GeneralSymptom(fl.Field().String()).Valid()
	})
	mustRegister(v, "skin_symptom", func(fl validator.FieldLevel) bool {
		return SkinSymptom(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// ValidatePersonalInfo checks every personal field independently and returns
// one message per failing field, in form order.
func ValidatePersonalInfo(info PersonalInfo) Result {
	return collect(validate.Struct(info.Normalize()))
}

// ValidateSymptoms requires at least one general and one skin symptom, all
// drawn from the fixed enumerations.
func ValidateSymptoms(sel SymptomSelection) Result {
	return collect(validate.Struct(sel))
}

// ValidateImagePresent reports a missing upload. Format checks happen at the
// upload boundary, not here.
func ValidateImagePresent(present bool) Result {
	if present {
		return Result{OK: true}
	}
	return Result{Errors: []FieldError{{Field: FieldImage, Message: "Please upload an image of the symptom."}}}
}

func collect(err error) Result {
	if err == nil {
		return Result{OK: true}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Result{Errors: []FieldError{{Field: "form", Message: err.Error()}}}
	}

	res := Result{}
	reported := make(map[string]bool)
	for _, fe := range verrs {
		fe := translate(fe)
		// dive reports each bad element separately; repeated messages collapse.
		key := fe.Field + "\x00" + fe.Message
		if reported[key] {
			continue
		}
		reported[key] = true
		res.Errors = append(res.Errors, fe)
	}
	return res
}

func translate(fe validator.FieldError) FieldError {
	switch fe.StructNamespace() {
	case "PersonalInfo.Name":
		if fe.Tag() == "max" {
			return FieldError{FieldName, fmt.Sprintf("Name must be at most %d characters.", MaxNameLength)}
		}
		return FieldError{FieldName, "Name is required."}
	case "PersonalInfo.Phone":
		if fe.Tag() == "required" {
			return FieldError{FieldPhone, "Phone number is required."}
		}
		return FieldError{FieldPhone, "Please enter a valid 10-digit Indian phone number."}
	case "PersonalInfo.Place":
		if fe.Tag() == "max" {
			return FieldError{FieldPlace, fmt.Sprintf("Place must be at most %d characters.", MaxPlaceLength)}
		}
		return FieldError{FieldPlace, "Place is required."}
	case "PersonalInfo.Age":
		if fe.Tag() == "required" {
			return FieldError{FieldAge, "Age is required."}
		}
		return FieldError{FieldAge, fmt.Sprintf("Age must be between %d and %d.", MinAge, MaxAge)}
	case "SymptomSelection.General":
		return FieldError{FieldGeneral, "Please select at least one general symptom."}
	case "SymptomSelection.Skin":
		return FieldError{FieldSkin, "Please select at least one skin symptom."}
	}

	switch {
	case strings.HasPrefix(fe.StructNamespace(), "SymptomSelection.General["):
		return FieldError{FieldGeneral, fmt.Sprintf("Unknown general symptom: %v", fe.Value())}
	case strings.HasPrefix(fe.StructNamespace(), "SymptomSelection.Skin["):
		return FieldError{FieldSkin, fmt.Sprintf("Unknown skin symptom: %v", fe.Value())}
	}
	return FieldError{Field: fe.Field(), Message: fe.Error()}
}
