package common

import (
	"fmt"
	"strings"
)

// ProblemType determines if a problem is HTTP or engine related.
type ProblemType int

const (
	ProblemHttpMediaType ProblemType = iota + 1
	ProblemHttpRequestBody
	ProblemHttpRequestUri

	// engine error types
	ProblemConflict
	ProblemDefinition
	ProblemNotFound
	ProblemQuery
	ProblemSecurity
	ProblemValidation
)

func MapProblemType(s string) ProblemType {
	switch s {
	case "HTTP_MEDIA_TYPE":
		return ProblemHttpMediaType
	case "HTTP_REQUEST_BODY":
		return ProblemHttpRequestBody
	case "HTTP_REQUEST_URI":
		return ProblemHttpRequestUri
	case "CONFLICT":
		return ProblemConflict
	case "DEFINITION":
		return ProblemDefinition
	case "NOT_FOUND":
		return ProblemNotFound
	case "QUERY":
		return ProblemQuery
	case "SECURITY":
		return ProblemSecurity
	case "VALIDATION":
		return ProblemValidation
	default:
		return 0
	}
}

func (v ProblemType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

func (v ProblemType) String() string {
	switch v {
	case ProblemHttpMediaType:
		return "HTTP_MEDIA_TYPE"
	case ProblemHttpRequestBody:
		return "HTTP_REQUEST_BODY"
	case ProblemHttpRequestUri:
		return "HTTP_REQUEST_URI"
	case ProblemConflict:
		return "CONFLICT"
	case ProblemDefinition:
		return "DEFINITION"
	case ProblemNotFound:
		return "NOT_FOUND"
	case ProblemQuery:
		return "QUERY"
	case ProblemSecurity:
		return "SECURITY"
	case ProblemValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

func (v *ProblemType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid problem type %s", s)
	}
	*v = MapProblemType(s[1 : len(s)-1])
	return nil
}

// Common format for HTTP 4xx and 5xx error responses, based on https://datatracker.ietf.org/doc/html/rfc9457.
type Problem struct {
	Status int         `json:"status"` // HTTP status code.
	Type   ProblemType `json:"type"`   // Problem type.
	Title  string      `json:"title"`  // Human-readable problem summary.
	Detail string      `json:"detail"` // Human-readable, detailed information about the problem.
	Errors []Error     `json:"errors,omitempty"`
}

func (v Problem) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("HTTP %d: %s: %s: %s", v.Status, v.Type, v.Title, v.Detail))

	for i := range v.Errors {
		sb.WriteRune('\n')
		sb.WriteString(v.Errors[i].String())
	}

	return sb.String()
}

// Error represents a failed validation, pointing on a JSON property or a graph element.
type Error struct {
	// A pointer, locating the invalid JSON property, node or sequence flow.
	Pointer string `json:"pointer"`
	// Error type.
	//
	// JSON property related values:
	//   - `cron`: value is not a valid CRON expression
	//   - `gte`: value must be greater than or equal to
	//   - `lte`: value must be less than or equal to
	//   - `max`: map or array exceeds a maximum number of items
	//   - `required`: value is required
	//   - `iso8601_duration`: value is not a valid ISO 8601 duration
	//
	// Definition related values are the cause types of an engine definition error, e.g. `node` or `sequence_flow`.
	Type string `json:"type"`
	// Human-readable, detailed information about the error.
	Detail string `json:"detail"`
	// Value or key that caused the validation error.
	Value string `json:"value,omitempty"`
}

func (v Error) String() string {
	return fmt.Sprintf("%s: %s", v.Pointer, v.Detail)
}
