// Package validation checks form payloads before they are sent to the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
			return mobilePattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// FieldErrors maps a json field name to a message.
type FieldErrors map[string]string

// Error returns the first message in field-name order.
func (fe FieldErrors) Error() string {
	field, msg := fe.First()
	if field == "" {
		return "validation failed"
	}
	return msg
}

// First returns the alphabetically first field and its message.
func (fe FieldErrors) First() (string, string) {
	if len(fe) == 0 {
		return "", ""
	}
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], fe[keys[0]]
}

// Struct validates v. It returns nil or a FieldErrors.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating: %w", err)
	}

	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return fields
}

// Mobile reports whether s is a ten-digit mobile number.
func Mobile(s string) bool {
	return mobilePattern.MatchString(s)
}

func message(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email address"
	case "mobile":
		return "Mobile number must be exactly 10 digits"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in the format %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}
