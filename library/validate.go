package library

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const minPublishedYear = 1000

// Validator checks caller input before it reaches the store. It is pure: no
// console I/O, no store access.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// NewValidator creates a validator. now bounds the published year to at most
// next year.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	val := &Validator{v: validator.New(), now: now}

	val.v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = val.v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.Contains(s, "@") && strings.Contains(s, ".")
	})
	_ = val.v.RegisterValidation("publishyear", func(fl validator.FieldLevel) bool {
		year := int(fl.Field().Int())
		return year >= minPublishedYear && year <= val.maxYear()
	})
	return val
}

func (val *Validator) maxYear() int { return val.now().Year() + 1 }

// Struct validates a NewBook, NewMember or any tagged struct.
func (val *Validator) Struct(s any) error {
	if err := val.v.Struct(s); err != nil {
		return val.formatError(err)
	}
	return nil
}

// Required rejects blank input.
func (val *Validator) Required(field, value string) error {
	return val.field(field, strings.TrimSpace(value), "required")
}

// Email requires "@" and "." in a non-empty address.
func (val *Validator) Email(value string) error {
	return val.field("email", strings.TrimSpace(value), "required,emailshape")
}

// Phone requires a digit string of at least ten characters.
func (val *Validator) Phone(value string) error {
	return val.field("phone", strings.TrimSpace(value), "required,number,min=10")
}

// Year parses and range-checks a published year.
func (val *Validator) Year(value string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, Validation("validation failed", map[string]string{"published_year": "must be a number"})
	}
	if err := val.field("published_year", year, "publishyear"); err != nil {
		return 0, err
	}
	return year, nil
}

// Price parses a price and requires it to be positive.
func (val *Validator) Price(value string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, Validation("validation failed", map[string]string{"price": "must be a number"})
	}
	if err := val.field("price", price, "gt=0"); err != nil {
		return 0, err
	}
	return price, nil
}

// ID parses a numeric identifier typed by the user.
func (val *Validator) ID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, Validation("validation failed", map[string]string{field: "must be a numeric id"})
	}
	return id, nil
}

func (val *Validator) field(name string, value any, tag string) error {
	if err := val.v.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Validation("validation failed", map[string]string{name: val.friendlyMessage(verrs[0])})
		}
		return err
	}
	return nil
}

func (val *Validator) formatError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = val.friendlyMessage(e)
	}
	return Validation("validation failed", fields)
}

func (val *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "emailshape":
		return "must contain '@' and '.'"
	case "number":
		return "must contain digits only"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "gt":
		return "must be greater than " + e.Param()
	case "publishyear":
		return fmt.Sprintf("must be between %d and %d", minPublishedYear, val.maxYear())
	default:
		return "is invalid"
	}
}
