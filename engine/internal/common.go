package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func timeOrNil(v pgtype.Timestamp) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func timestamp(v time.Time) pgtype.Timestamp {
	return pgtype.Timestamp{Time: v, Valid: true}
}

func text(v string) pgtype.Text {
	return pgtype.Text{String: v, Valid: v != ""}
}

func int8OrZero(v pgtype.Int8) int64 {
	if !v.Valid {
		return 0
	}
	return v.Int64
}

// splitList splits a comma separated list and drops blank entries.
func splitList(s string) []string {
	var values []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// normalizeVariables returns a copy of variables, that looks exactly like it was read from a store.
// Numbers become float64 and variables, which cannot be encoded as JSON (e.g. NaN or channels), result in an error.
func normalizeVariables(variables map[string]any) (map[string]any, error) {
	if len(variables) == 0 {
		return map[string]any{}, nil
	}

	b, err := json.Marshal(variables)
	if err != nil {
		return nil, err
	}

	normalized := make(map[string]any, len(variables))
	if err := json.Unmarshal(b, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// mergeVariables sets all variables of src in dst. A nil value deletes a variable.
func mergeVariables(dst map[string]any, src map[string]any) {
	for name, value := range src {
		if value == nil {
			delete(dst, name)
		} else {
			dst[name] = value
		}
	}
}

func cloneVariables(variables map[string]any) map[string]any {
	if variables == nil {
		return map[string]any{}
	}
	return CopyVariables(variables)
}

// CopyVariables returns a deep copy of decoded JSON variables. Nested objects and arrays are copied as well.
func CopyVariables(variables map[string]any) map[string]any {
	if variables == nil {
		return nil
	}
	c := make(map[string]any, len(variables))
	for name, value := range variables {
		c[name] = copyValue(value)
	}
	return c
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return CopyVariables(v)
	case []any:
		c := make([]any, len(v))
		for i := range v {
			c[i] = copyValue(v[i])
		}
		return c
	default:
		return v
	}
}

// EncodeVariables encodes variables as JSON object, used by store implementations.
func EncodeVariables(variables map[string]any) ([]byte, error) {
	if variables == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %v", err)
	}
	return b, nil
}

// DecodeVariables decodes a JSON object, written by [EncodeVariables].
func DecodeVariables(b []byte) (map[string]any, error) {
	variables := make(map[string]any)
	if len(b) == 0 {
		return variables, nil
	}
	if err := json.Unmarshal(b, &variables); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %v", err)
	}
	return variables, nil
}
