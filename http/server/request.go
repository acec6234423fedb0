package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

const maxRequestBodySize = 1048576 // 1mb = 1024 * 1024

var validate = newValidate()

func newValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0] // e.g. `json:"lockDuration,omitempty"` -> lockDuration
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

// decodeJSONRequestBody decodes the request body using v and validates it.
// Media type, request body or validation related errors are returned as a Problem.
//
// inspired by https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func decodeJSONRequestBody(w http.ResponseWriter, r *http.Request, v any) error {
	if contentType := r.Header.Get(common.HeaderContentType); contentType != "" {
		mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if mediaType != common.ContentTypeJson {
			return common.Problem{
				Status: http.StatusUnsupportedMediaType,
				Type:   common.ProblemHttpMediaType,
				Title:  "unsupported media type",
				Detail: fmt.Sprintf("media type %s is not supported", mediaType),
			}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var (
			syntaxError        *json.SyntaxError
			unmarshalTypeError *json.UnmarshalTypeError
			maxBytesError      *http.MaxBytesError
		)

		problem := common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestBody,
			Title:  "invalid request body",
		}

		switch {
		case errors.As(err, &syntaxError):
			problem.Detail = fmt.Sprintf("malformed JSON at position %d", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			problem.Detail = "unexpected end of JSON"
		case errors.As(err, &unmarshalTypeError):
			problem.Detail = fmt.Sprintf("JSON field %s has an invalid value at position %d", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			problem.Detail = fmt.Sprintf("unknown JSON field %s", fieldName)
		case errors.Is(err, io.EOF):
			problem.Detail = "request body is empty"
		case errors.As(err, &maxBytesError):
			problem.Detail = "request body size must not exceed 1MB"
		default:
			problem.Detail = fmt.Sprintf("failed to unmarshal JSON: %v", err)
		}

		return problem
	}

	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("failed to validate %T: %v", v, err)
		}

		errs := make([]common.Error, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			var (
				detail string
				value  string
			)
			switch fieldError.Tag() {
			case "gte":
				detail = fmt.Sprintf("must be greater than or equal to %s", fieldError.Param())
				value = fmt.Sprintf("%v", fieldError.Value())
			case "lte":
				detail = fmt.Sprintf("must be less than or equal to %s", fieldError.Param())
				value = fmt.Sprintf("%v", fieldError.Value())
			case "max":
				detail = fmt.Sprintf("exceeds a maximum of %s", fieldError.Param())
			case "required":
				detail = "is required"
			// custom validation
			case "cron":
				detail = "is invalid"
				value = fmt.Sprintf("%v", fieldError.Value())
			case "iso8601_duration":
				detail = "is invalid"
				value = fmt.Sprintf("%v", fieldError.Value())
			default:
				detail = "unknown error"
				value = fmt.Sprintf("%v", fieldError.Value())
			}

			errs = append(errs, common.Error{
				Pointer: toPointer(fieldError.Namespace()),
				Type:    fieldError.Tag(),
				Detail:  detail,
				Value:   value,
			})
		}

		return common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemValidation,
			Title:  "invalid request body",
			Detail: "failed to validate request body",
			Errors: errs,
		}
	}

	return nil
}

// toPointer converts a validator namespace into a JSON pointer, e.g. LockExternalTasksCmd.lockDuration -> #/lockDuration.
func toPointer(namespace string) string {
	i := strings.IndexRune(namespace, '.')
	if i == -1 {
		return "#"
	}

	path := namespace[i+1:]
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return "#/" + strings.ReplaceAll(path, ".", "/")
}

func parseId(r *http.Request) (int64, error) {
	idValue := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid path parameter id",
			Detail: fmt.Sprintf("failed to parse value '%s'", idValue),
		}
	}
	if id < 1 {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemValidation,
			Title:  "invalid path parameter id",
			Detail: fmt.Sprintf("ID %s must be greater than 0", idValue),
		}
	}
	return id, nil
}

func parseQueryOptions(r *http.Request) (engine.QueryOptions, error) {
	limit, err := parseQueryInt(r, common.QueryLimit)
	if err != nil {
		return engine.QueryOptions{}, err
	}
	offset, err := parseQueryInt(r, common.QueryOffset)
	if err != nil {
		return engine.QueryOptions{}, err
	}

	return engine.QueryOptions{
		Limit:  limit,
		Offset: offset,
	}, nil
}

func parseQueryInt(r *http.Request, name string) (int, error) {
	values, ok := r.URL.Query()[name]
	if !ok {
		return 0, nil
	}

	v, err := strconv.ParseInt(values[0], 10, 32)
	if err != nil {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid query parameter " + name,
			Detail: "failed to parse value " + values[0],
		}
	}
	if v < 0 {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemValidation,
			Title:  "invalid query parameter " + name,
			Detail: fmt.Sprintf("%s %d must be greater than or equal to 0", name, v),
		}
	}
	return int(v), nil
}
