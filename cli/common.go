package cli

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func flagQueryOptions(c *cobra.Command, options *engine.QueryOptions) {
	c.Flags().IntVar(&options.Limit, "limit", 100, "Maximum number of results")
	c.Flags().IntVar(&options.Offset, "offset", 0, "Number of results to skip")
}

func flagVariables(c *cobra.Command, variables *map[string]string) {
	c.Flags().StringToStringVar(variables, "variable", nil, "Variable, consisting of name and JSON value - a value, which is no valid JSON, is passed as string")
}

// mapVariables decodes each value as JSON. Values, which are no valid JSON, are taken as string.
// An empty value deletes the variable.
func mapVariables(valueMap map[string]string) map[string]any {
	if len(valueMap) == 0 {
		return nil
	}

	variables := make(map[string]any, len(valueMap))
	for name, value := range valueMap {
		if value == "" {
			variables[name] = nil
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			variables[name] = value
		} else {
			variables[name] = v
		}
	}
	return variables
}

func formatId(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
