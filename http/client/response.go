package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func decodeJSONResponseBody(res *http.Response, v any) error {
	defer res.Body.Close()

	decoder := json.NewDecoder(res.Body)

	contentType := res.Header.Get(common.HeaderContentType)
	if strings.HasPrefix(contentType, common.ContentTypeProblemJson) {
		var problem common.Problem
		if err := decoder.Decode(&problem); err != nil {
			return fmt.Errorf("failed to decode JSON problem response body: %v", err)
		}
		return toError(problem)
	}

	if res.StatusCode >= 300 {
		text := fmt.Sprintf(
			"%s %s: HTTP %d",
			res.Request.Method,
			res.Request.URL.Path,
			res.StatusCode,
		)

		b, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("%s: %v", text, err)
		} else if len(b) != 0 {
			return fmt.Errorf("%s: %s", text, strings.TrimSpace(string(b)))
		} else {
			return errors.New(text)
		}
	}

	if v == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("failed to decode JSON response body: %v", err)
	}

	return nil
}

// toError maps an engine related problem back to an [engine.Error]. HTTP related problems are returned as they are.
func toError(problem common.Problem) error {
	var errorType engine.ErrorType
	switch problem.Type {
	case common.ProblemConflict:
		errorType = engine.ErrorConflict
	case common.ProblemDefinition:
		errorType = engine.ErrorDefinition
	case common.ProblemNotFound:
		errorType = engine.ErrorNotFound
	case common.ProblemQuery:
		errorType = engine.ErrorQuery
	case common.ProblemSecurity:
		errorType = engine.ErrorSecurity
	case common.ProblemValidation:
		errorType = engine.ErrorValidation
	default:
		return problem
	}

	var causes []engine.ErrorCause
	for _, e := range problem.Errors {
		causes = append(causes, engine.ErrorCause{
			Pointer: strings.TrimPrefix(e.Pointer, "#"),
			Type:    e.Type,
			Detail:  e.Detail,
		})
	}

	return engine.Error{
		Type:   errorType,
		Title:  problem.Title,
		Detail: problem.Detail,
		Causes: causes,
	}
}
