package cli

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(time.RFC3339)
}

func formatTimeOrNil(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

// formatVariables formats variables as indented JSON, ordered by name.
func formatVariables(variables map[string]any) (string, error) {
	if variables == nil {
		variables = map[string]any{}
	}

	b, err := json.MarshalIndent(variables, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func newTable(headers []string) table {
	rows := make([][]string, 2)
	rows[0] = headers
	rows[1] = make([]string, len(headers))

	return table{rows: rows}
}

// table formats rows as left-aligned columns. The second row separates headers and values.
type table struct {
	rows [][]string
}

func (t *table) addRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *table) format() string {
	rows := t.rows

	columns := make([]int, len(rows[0]))
	for _, row := range rows {
		for j := range columns {
			if l := utf8.RuneCountInString(row[j]); columns[j] < l {
				columns[j] = l
			}
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		for j, width := range columns {
			if j != 0 {
				sb.WriteString("   ")
			}

			value := row[j]
			sb.WriteString(value)

			if j != len(columns)-1 {
				sb.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(value)))
			}
		}
		sb.WriteRune('\n')
	}

	return sb.String()
}
