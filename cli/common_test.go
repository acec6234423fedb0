package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/mem"
)

func mustCreateEngine(t *testing.T) engine.Engine {
	e, err := mem.New(func(o *mem.Options) {
		o.Common.Logger = hclog.NewNullLogger()
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func execute(e engine.Engine, args []string) (string, error) {
	rootCmd := newRootCmd(&Cli{e: e, version: "test-version"})
	rootCmd.PersistentPostRun = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, e engine.Engine, args ...string) string {
	out, err := execute(e, args)
	if err != nil {
		t.Fatalf("failed to execute %v: %v", args, err)
	}
	return out
}

// mustExecuteId executes a command, which prints an ID.
func mustExecuteId(t *testing.T, e engine.Engine, args ...string) int64 {
	out := mustExecute(t, e, args...)

	id, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	require.NoError(t, err, "output %q is no ID", out)
	return id
}

func mustWriteFile(t *testing.T, name string, content string) string {
	fileName := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fileName, []byte(content), 0o644))
	return fileName
}

func TestMapVariables(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(mapVariables(nil))

	variables := mapVariables(map[string]string{
		"amount":   "21",
		"approved": "true",
		"deleted":  "",
		"items":    `["a","b"]`,
		"name":     "bob",
		"quoted":   `"x"`,
	})

	assert.Equal(map[string]any{
		"amount":   21.0,
		"approved": true,
		"deleted":  nil,
		"items":    []any{"a", "b"},
		"name":     "bob",
		"quoted":   "x",
	}, variables)
}

func TestTable(t *testing.T) {
	assert := assert.New(t)

	table := newTable([]string{"ID", "NAME"})
	table.addRow("1", "first")
	table.addRow("1000", "ä")

	assert.Equal("ID     NAME\n       \n1      first\n1000   ä\n", table.format())
}

func TestStateValue(t *testing.T) {
	assert := assert.New(t)

	var state engine.InstanceState
	v := newStateValue(&state, engine.MapInstanceState, "instanceState")

	assert.Equal("", v.String())
	assert.Equal("instanceState", v.Type())

	assert.NoError(v.Set("SUSPENDED"))
	assert.Equal(engine.InstanceSuspended, state)
	assert.Equal("SUSPENDED", v.String())

	assert.ErrorContains(v.Set("PAUSED"), "invalid instanceState PAUSED")
}
