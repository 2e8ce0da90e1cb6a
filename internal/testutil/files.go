package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes content to name inside a fresh temp dir and returns the path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// WriteLines writes lines joined by newlines, with a trailing newline.
func WriteLines(t testing.TB, name string, lines ...string) string {
	t.Helper()
	return WriteFile(t, name, strings.Join(lines, "\n")+"\n")
}
