package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configFile = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "beacon dev")
}

func TestRulesCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
rules:
  - name: Errors to ops
    channel: chan-1
    type: webhook
    severity: [error]
    settings:
      endpoint: https://hooks.example.com/ops
`), 0o600))

	out, err := execute(t, "rules", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "1 rules OK")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
rules:
  - name: Broken slack
    channel: chan-1
    type: slack
    severity: [error]
    settings:
      endpoint: https://example.com/not-slack
      channel: general
`), 0o600))

	out, err = execute(t, "rules", "check", bad)
	require.Error(t, err)
	assert.Contains(t, out, `rule "Broken slack"`)
}
