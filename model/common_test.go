package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// mustCreateModel parses a BPMN file of the shared test/bpmn directory.
func mustCreateModel(t *testing.T, fileName string) *Model {
	f, err := os.Open(filepath.Join("..", "test", "bpmn", fileName))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	model, err := New(f)
	require.NoError(t, err, "failed to parse %s", fileName)
	return model
}

func mustGetProcess(t *testing.T, model *Model) *Process {
	process := model.ExecutableProcess()
	require.NotNil(t, process, "model %s has no process", model.Id)
	return process
}
