package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestArgs_RejectsExtraArguments(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"up", "extra"}, `unknown command "extra" for "migrate up"`},
		{[]string{"down", "extra"}, `unknown command "extra" for "migrate down"`},
		{[]string{"version", "extra"}, `unknown command "extra" for "migrate version"`},
		{[]string{"force", "3", "extra"}, "accepts 1 arg(s), received 2"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestArgs_ForceNeedsVersion(t *testing.T) {
	err := execute(t, "force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")

	err = execute(t, "force", "three")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version number")
}

func TestArgs_UnknownCommand(t *testing.T) {
	err := execute(t, "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "sideways"`)
}

func TestOpen_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("RULEPACK_STORE_DATABASE_URL", "")

	err := execute(t, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}
