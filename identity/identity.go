/*
Package identity validates student identity and contact input.

RULES:
  - name, surname, father name: at least 2 letters; with ScriptGeorgian only
    Mkhedruli letters (U+10D0..U+10FA) are accepted
  - phone: exactly 9 digits
  - email: a syntactically valid address

Values are trimmed before validation. Validation is done with
go-playground/validator using two custom tags: "personname" and "phone".
*/
package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/warp/enrollment-engine/enrollment"
)

// Script selects which alphabet personal names may use.
type Script string

const (
	ScriptAny      Script = "any"
	ScriptGeorgian Script = "georgian"
)

// ParseScript maps a config value to a Script, defaulting to ScriptAny.
func ParseScript(s string) Script {
	if Script(strings.ToLower(strings.TrimSpace(s))) == ScriptGeorgian {
		return ScriptGeorgian
	}
	return ScriptAny
}

// ErrInvalidInput is matched by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// FieldError names the field and the rule it broke.
type FieldError struct {
	Field string
	Rule  string
	Value string
}

func (e *FieldError) Error() string {
	switch e.Rule {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min":
		return fmt.Sprintf("%s must have at least 2 characters", e.Field)
	case "personname":
		return fmt.Sprintf("%s must contain letters only", e.Field)
	case "personname_georgian":
		return fmt.Sprintf("%s must use the Georgian alphabet", e.Field)
	case "phone":
		return fmt.Sprintf("%s must consist of 9 digits", e.Field)
	case "email":
		return fmt.Sprintf("%s has an invalid format", e.Field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", e.Field, e.Rule)
	}
}

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// StudentInput is the raw identity and contact form.
type StudentInput struct {
	Name       string `json:"name" validate:"required,min=2,personname"`
	Surname    string `json:"surname" validate:"required,min=2,personname"`
	FatherName string `json:"father_name" validate:"required,min=2,personname"`
	Phone      string `json:"phone" validate:"required,phone"`
	Email      string `json:"email" validate:"required,email"`
}

// KeyInput is the identity part only, used to look a student up.
type KeyInput struct {
	Name       string `json:"name" validate:"required,min=2,personname"`
	Surname    string `json:"surname" validate:"required,min=2,personname"`
	FatherName string `json:"father_name" validate:"required,min=2,personname"`
}

// ContactInput is the contact part only.
type ContactInput struct {
	Phone string `json:"phone" validate:"required,phone"`
	Email string `json:"email" validate:"required,email"`
}

var fieldLabels = map[string]string{
	"Name":       "name",
	"Surname":    "surname",
	"FatherName": "father's name",
	"Phone":      "phone number",
	"Email":      "email",
}

// Validator checks identity input.
type Validator struct {
	script   Script
	validate *validator.Validate
}

// New constructs a Validator for the given name script.
func New(script Script) *Validator {
	v := &Validator{script: script, validate: validator.New()}
	v.validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return v.nameOK(fl.Field().String())
	})
	v.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return isPhone(fl.Field().String())
	})
	return v
}

// Script returns the configured name script.
func (v *Validator) Script() Script { return v.script }

// Student validates the whole form and returns the normalized student.
func (v *Validator) Student(in StudentInput) (enrollment.Student, error) {
	in = StudentInput{
		Name:       strings.TrimSpace(in.Name),
		Surname:    strings.TrimSpace(in.Surname),
		FatherName: strings.TrimSpace(in.FatherName),
		Phone:      strings.TrimSpace(in.Phone),
		Email:      strings.TrimSpace(in.Email),
	}
	if err := v.validate.Struct(in); err != nil {
		return enrollment.Student{}, v.translate(err)
	}
	return enrollment.Student{
		Key:     enrollment.StudentKey{Name: in.Name, Surname: in.Surname, FatherName: in.FatherName},
		Contact: enrollment.Contact{Phone: in.Phone, Email: in.Email},
	}, nil
}

// Key validates the identity fields.
func (v *Validator) Key(in KeyInput) (enrollment.StudentKey, error) {
	in = KeyInput{
		Name:       strings.TrimSpace(in.Name),
		Surname:    strings.TrimSpace(in.Surname),
		FatherName: strings.TrimSpace(in.FatherName),
	}
	if err := v.validate.Struct(in); err != nil {
		return enrollment.StudentKey{}, v.translate(err)
	}
	return enrollment.StudentKey{Name: in.Name, Surname: in.Surname, FatherName: in.FatherName}, nil
}

// Contact validates the contact fields.
func (v *Validator) Contact(in ContactInput) (enrollment.Contact, error) {
	in = ContactInput{Phone: strings.TrimSpace(in.Phone), Email: strings.TrimSpace(in.Email)}
	if err := v.validate.Struct(in); err != nil {
		return enrollment.Contact{}, v.translate(err)
	}
	return enrollment.Contact{Phone: in.Phone, Email: in.Email}, nil
}

// NamePart validates a single name field as typed at a prompt.
func (v *Validator) NamePart(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if err := v.validate.Var(value, "required,min=2,personname"); err != nil {
		return "", v.translateVar(field, value, err)
	}
	return value, nil
}

// Phone validates a phone number as typed at a prompt.
func (v *Validator) Phone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if err := v.validate.Var(value, "required,phone"); err != nil {
		return "", v.translateVar("phone number", value, err)
	}
	return value, nil
}

// Email validates an email address as typed at a prompt.
func (v *Validator) Email(value string) (string, error) {
	value = strings.TrimSpace(value)
	if err := v.validate.Var(value, "required,email"); err != nil {
		return "", v.translateVar("email", value, err)
	}
	return value, nil
}

func (v *Validator) nameOK(s string) bool {
	for _, r := range s {
		if v.script == ScriptGeorgian {
			if r < '\u10D0' || r > '\u10FA' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}

func isPhone(s string) bool {
	if len(s) != 9 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (v *Validator) rule(tag string) string {
	if tag == "personname" && v.script == ScriptGeorgian {
		return "personname_georgian"
	}
	return tag
}

// translate returns the first failing field as a *FieldError, joined with
// the rest when several fields fail.
func (v *Validator) translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		out = append(out, &FieldError{Field: label, Rule: v.rule(fe.Tag()), Value: fmt.Sprint(fe.Value())})
	}
	if len(out) == 1 {
		return out[0]
	}
	return errors.Join(out...)
}

func (v *Validator) translateVar(field, value string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return &FieldError{Field: field, Rule: v.rule(verrs[0].Tag()), Value: value}
}
