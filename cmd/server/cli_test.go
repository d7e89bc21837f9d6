package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAcquireCommand(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	readings := `[
		{"sample": {"latitude": 18.52, "longitude": 73.85, "accuracy": 120}},
		{"sample": {"latitude": 18.521, "longitude": 73.851, "accuracy": 80}},
		{"sample": {"latitude": 18.5204, "longitude": 73.8567, "accuracy": 45}}
	]`

	out, err := execute(t, readings, "acquire", "--log-level", "error")
	require.NoError(t, err)

	var result acquireOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 45.0, result.Coordinate.AccuracyMeters)
	assert.Equal(t, 18.5204, result.Coordinate.Latitude)
	assert.Nil(t, result.Place)
}

func TestAcquireCommand_InsecureOrigin(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	_, err := execute(t, `[{"sample": {"latitude": 1, "longitude": 1, "accuracy": 5}}]`,
		"acquire", "--origin", "http://farm.example.org", "--log-level", "error")
	assert.ErrorContains(t, err, "insecure_context")

	acquireOrigin = "http://localhost"
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "cli.db"))

	out, err := execute(t, "", "migrate", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 migration(s)")

	out, err = execute(t, "", "migrate", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")
}
