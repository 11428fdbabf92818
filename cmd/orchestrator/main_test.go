package main

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPolicyCheck(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := policyCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"check"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
directIntegration:
  Datafast Processor:
    bins: ["all"]
    merchants: ["m-1"]
`), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("tokenMaxAge: -1m\n"), 0o600))

	tests := []struct {
		name     string
		args     []string
		wantErr  string
		contains string
	}{
		{name: "defaults", contains: "policy OK"},
		{name: "file", args: []string{valid}, contains: "Datafast Processor"},
		{name: "invalid", args: []string{invalid}, wantErr: "tokenMaxAge must be positive"},
		{name: "missing file", args: []string{filepath.Join(dir, "nope.yaml")}, wantErr: "read policy file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runPolicyCheck(t, tt.args...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:50051", listenAddr("0.0.0.0", 50051))
	assert.Equal(t, "[::1]:8080", listenAddr("::1", 8080))
}

func TestIgnoreClosed(t *testing.T) {
	assert.NoError(t, ignoreClosed(http.ErrServerClosed))
	boom := errors.New("address already in use")
	assert.Equal(t, boom, ignoreClosed(boom))
}
