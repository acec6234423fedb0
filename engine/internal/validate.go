package internal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0] // e.g. `json:"lockDuration,omitempty"` -> lockDuration
		if name == "-" {
			return f.Name
		}
		return name
	})

	validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == "" {
			return true
		}
		return gronx.IsValid(v)
	})
	validate.RegisterValidation("iso8601_duration", func(fl validator.FieldLevel) bool {
		_, err := engine.NewISO8601Duration(fl.Field().String())
		return err == nil
	})

	return validate
}

// validateCmd validates a command. Violations are returned as an error of type [engine.ErrorValidation].
func (e *Engine) validateCmd(title string, cmd any) error {
	err := e.validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return engine.Error{
			Type:   engine.ErrorBug,
			Title:  title,
			Detail: fmt.Sprintf("failed to validate %T: %v", cmd, err),
		}
	}

	causes := make([]engine.ErrorCause, len(validationErrors))
	for i, fieldError := range validationErrors {
		causes[i] = engine.ErrorCause{
			Pointer: "/" + fieldError.Field(),
			Type:    fieldError.Tag(),
			Detail:  validationDetail(fieldError),
		}
	}

	return engine.Error{
		Type:   engine.ErrorValidation,
		Title:  title,
		Detail: "invalid command",
		Causes: causes,
	}
}

func validationDetail(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fieldError.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fieldError.Param())
	case "max":
		return fmt.Sprintf("must not contain more than %s entries", fieldError.Param())
	case "cron":
		return "is not a valid CRON expression"
	case "iso8601_duration":
		return "is not a valid ISO 8601 duration"
	default:
		return fmt.Sprintf("is invalid: %s", fieldError.Tag())
	}
}
