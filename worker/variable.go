package worker

import (
	"encoding/json"
	"fmt"
)

// Variables is used to read the variables of a task and to set variables of a process instance.
type Variables map[string]any

// Decode decodes a variable into v, which must be a pointer - e.g. a pointer to a struct.
func (v Variables) Decode(name string, value any) error {
	return decodeVariable(v, name, value)
}

// Delete marks a variable for deletion. When merged, the variable is removed from the process instance.
func (v Variables) Delete(name string) {
	v.Put(name, nil)
}

func (v Variables) Has(name string) bool {
	_, ok := v[name]
	return ok
}

func (v Variables) Put(name string, value any) {
	if name != "" {
		v[name] = value
	}
}

func decodeVariable(variables map[string]any, name string, v any) error {
	value, ok := variables[name]
	if !ok {
		return fmt.Errorf("variable %s does not exist", name)
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode variable %s: %v", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode variable %s: %v", name, err)
	}
	return nil
}
