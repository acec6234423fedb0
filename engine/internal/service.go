package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/zensgit/metasheet2-sub006/engine"
)

// maxResponseSize limits the response body of an HTTP service task.
const maxResponseSize = 10 << 20

// callHttp sends the process variables as JSON to the URL of an HTTP service task.
//
// A timeout results in an incident of type [engine.IncidentTimeoutError]. Any other failure, including a non 2xx status, in an incident of type [engine.IncidentFailedJob].
func (ec *execution) callHttp(b httpServiceBehavior) error {
	url, err := ec.e.evaluator.ResolveString(b.url, ec.variables())
	if err != nil {
		return failedJob("failed to resolve URL: %v", err)
	}

	var body io.Reader
	if b.method != http.MethodGet && b.method != http.MethodDelete {
		data, err := json.Marshal(ec.variables())
		if err != nil {
			return failedJob("failed to encode variables: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ec.ctx, b.method, url, body)
	if err != nil {
		return failedJob("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := ec.e.options.HttpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &activityError{
				Type:    engine.IncidentTimeoutError,
				Message: fmt.Sprintf("HTTP request %s %s timed out: %v", b.method, url, err),
			}
		}
		return failedJob("HTTP request %s %s failed: %v", b.method, url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return &activityError{
				Type:    engine.IncidentTimeoutError,
				Message: fmt.Sprintf("HTTP response of %s %s timed out: %v", b.method, url, err),
			}
		}
		return failedJob("failed to read HTTP response of %s %s: %v", b.method, url, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return failedJob("HTTP request %s %s failed with status %d: %s", b.method, url, res.StatusCode, truncate(string(data), 200))
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		if b.resultVariable == "" {
			return nil // not JSON
		}
		result = string(data)
	}

	if b.resultVariable != "" {
		return ec.setVariables(map[string]any{b.resultVariable: result})
	}
	if object, ok := result.(map[string]any); ok {
		return ec.setVariables(object)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
