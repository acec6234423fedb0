package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func execute(args ...string) (string, error) {
	rootCmd := newRootCmd()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	assert := assert.New(t)

	t.Run("version", func(t *testing.T) {
		out, err := execute("version")
		assert.NoError(err)
		assert.Equal("unknown-version\n", out)
	})

	t.Run("env", func(t *testing.T) {
		out, err := execute("env")
		assert.NoError(err)
		assert.Contains(out, "WORKFLOW_STORE")
	})

	t.Run("migrate requires pg store", func(t *testing.T) {
		t.Setenv("WORKFLOW_STORE", "mem")

		_, err := execute("migrate")
		assert.ErrorContains(err, "migration requires store type pg")
	})

	t.Run("serve returns error when config file does not exist", func(t *testing.T) {
		_, err := execute("serve", "--config", t.TempDir()+"/unknown.yaml")
		assert.Error(err)
	})
}
