package cmd

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/trickle/internal/config"
)

// execute runs the CLI with an isolated default settings path and returns
// everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithConfig(t, filepath.Join(t.TempDir(), "settings.json"), args...)
}

func executeWithConfig(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeSettings saves s as YAML in a temp dir and returns its path.
func writeSettings(t *testing.T, s *config.Settings) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.SaveSettings(path, s))
	return path
}

// requireTCPListener skips tests that need a loopback server when the
// sandbox cannot open one.
func requireTCPListener(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	_ = ln.Close()
}
