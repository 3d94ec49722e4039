package experiment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/headline-goat/variant-goat/internal/store"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("test_type", func(fl validator.FieldLevel) bool {
		return validTestType(store.TestType(fl.Field().String()))
	})
	_ = validate.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return validMetric(store.Metric(fl.Field().String()))
	})
}

func validTestType(t store.TestType) bool {
	for _, known := range store.TestTypes {
		if t == known {
			return true
		}
	}
	return false
}

func validMetric(m store.Metric) bool {
	for _, known := range store.Metrics {
		if m == known {
			return true
		}
	}
	return false
}

func validStatus(s store.TestStatus) bool {
	switch s {
	case store.StatusDraft, store.StatusRunning, store.StatusPaused, store.StatusCompleted, store.StatusCancelled:
		return true
	}
	return false
}

// validateStruct runs the struct tags and reports the first failure.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &ValidationError{Field: field, Message: describeTag(fe)}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "test_type":
		return fmt.Sprintf("unknown test type %q", fe.Value())
	case "metric":
		return fmt.Sprintf("unknown primary metric %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
