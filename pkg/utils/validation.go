package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// symbol: ticker safe to embed in table keys
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return valueobjects.IsValidSymbol(fl.Field().String())
	})
	// keysafe: identifier without the key separator
	_ = v.RegisterValidation("keysafe", func(fl validator.FieldLevel) bool {
		return !strings.Contains(fl.Field().String(), "#")
	})

	return v
}

// ValidateStruct validates a struct based on its validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateVar validates a single value against a tag
func ValidateVar(value interface{}, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, formatFieldError(e))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return err
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	if field == "" {
		field = "value"
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "symbol":
		return fmt.Sprintf("%s must be 1-20 characters of A-Z, 0-9, '.', '_' or '-'", field)
	case "keysafe":
		return fmt.Sprintf("%s must not contain '#'", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
