package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func (s *Server) encodeJSONProblemResponseBody(w http.ResponseWriter, r *http.Request, err error) {
	var (
		problem   common.Problem
		engineErr engine.Error
	)

	switch {
	case errors.As(err, &problem):
	case errors.As(err, &engineErr) && engineErr.Type != 0:
		problem = newProblem(engineErr)
		if problem.Status == http.StatusInternalServerError {
			s.logger.Error("engine error occurred", "method", r.Method, "uri", r.RequestURI, "err", err)
		}
	default:
		s.logger.Error("unexpected error occurred", "method", r.Method, "uri", r.RequestURI, "err", err)

		problem = common.Problem{
			Status: http.StatusInternalServerError,
			Title:  "unexpected error occurred",
			Detail: "see server logs",
		}
	}

	w.Header().Set(common.HeaderContentType, common.ContentTypeProblemJson)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		s.logger.Error("failed to create JSON problem response body", "method", r.Method, "uri", r.RequestURI, "err", err)
	}
}

func (s *Server) encodeJSONResponseBody(w http.ResponseWriter, r *http.Request, v any, statusCode int) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJson)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to create JSON response body", "method", r.Method, "uri", r.RequestURI, "err", err)
	}
}

// newProblem maps an engine error to a problem with a matching HTTP status.
func newProblem(engineErr engine.Error) common.Problem {
	var (
		status      int
		problemType common.ProblemType
	)

	switch engineErr.Type {
	case engine.ErrorConflict:
		status = http.StatusConflict
		problemType = common.ProblemConflict
	case engine.ErrorDefinition:
		status = http.StatusUnprocessableEntity
		problemType = common.ProblemDefinition
	case engine.ErrorNotFound:
		status = http.StatusNotFound
		problemType = common.ProblemNotFound
	case engine.ErrorQuery:
		status = http.StatusBadRequest
		problemType = common.ProblemQuery
	case engine.ErrorSecurity:
		status = http.StatusForbidden
		problemType = common.ProblemSecurity
	case engine.ErrorValidation:
		status = http.StatusBadRequest
		problemType = common.ProblemValidation
	default:
		status = http.StatusInternalServerError
	}

	var errs []common.Error
	for _, cause := range engineErr.Causes {
		errs = append(errs, common.Error{
			Pointer: cause.Pointer,
			Type:    cause.Type,
			Detail:  cause.Detail,
		})
	}

	return common.Problem{
		Status: status,
		Type:   problemType,
		Title:  engineErr.Title,
		Detail: engineErr.Detail,
		Errors: errs,
	}
}
