package internal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyVariables(t *testing.T) {
	assert := assert.New(t)

	t.Run("nil", func(t *testing.T) {
		assert.Nil(CopyVariables(nil))
		assert.Equal(map[string]any{}, cloneVariables(nil))
	})

	t.Run("copies nested objects and arrays", func(t *testing.T) {
		// given
		variables := map[string]any{
			"amount": 1.0,
			"order": map[string]any{
				"amount": 1.0,
				"items":  []any{map[string]any{"sku": "a"}, "b"},
			},
		}

		// when
		c := CopyVariables(variables)

		c["amount"] = 2.0
		c["order"].(map[string]any)["amount"] = 999.0
		items := c["order"].(map[string]any)["items"].([]any)
		items[0].(map[string]any)["sku"] = "x"
		items[1] = "y"

		// then
		assert.Equal(map[string]any{
			"amount": 1.0,
			"order": map[string]any{
				"amount": 1.0,
				"items":  []any{map[string]any{"sku": "a"}, "b"},
			},
		}, variables)
	})
}

func mustReadFile(t *testing.T, fileName string) string {
	fileName = "../../test/bpmn/" + fileName

	b, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatalf("failed to read BPMN file %s: %v", fileName, err)
	}
	return string(b)
}
