// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapview/internal/cli/output"
	"github.com/leapstack-labs/leapview/pkg/adapter"
	"github.com/leapstack-labs/leapview/pkg/adapters/sqlite"
)

// SetupTestProject creates a temporary project with a config file and a
// few data files under data/, and returns its directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "data"), 0o755))

	files := map[string]string{
		"leapview.yaml": "output: markdown\nworkers: 2\n",
		// Timestamps are one minute apart.
		"data/events.csv": `ts,level,message
2024-01-01T00:00:00Z,info,start
2024-01-01T00:01:00Z,warn,slow
2024-01-01T00:02:00Z,info,ok
2024-01-01T00:03:00Z,error,boom
2024-01-01T00:04:00Z,info,done
`,
		"data/events2.csv": `ts,level,message
2024-01-01T00:05:00Z,info,again
2024-01-01T00:06:00Z,N/A,quiet
`,
		"data/people.csv": `id,name,age
1,Alice,30
2,Bob,
3,Carol,41
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644))
	}
	return tmpDir
}

// CreateSQLiteDB creates a SQLite database at path and runs stmts in it.
func CreateSQLiteDB(t *testing.T, path string, stmts ...string) {
	t.Helper()
	ctx := context.Background()
	a := sqlite.New(nil)
	require.NoError(t, a.Connect(ctx, adapter.Config{Path: path}))
	defer func() { _ = a.Close() }()
	for _, s := range stmts {
		_, err := a.DB.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer renders in mode into a buffer, pretending the buffer is a
// terminal when isTTY is set.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode without a TTY,
// so output carries no escape codes.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, false)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation: headers must have
// text and table rows must be closed.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
		if strings.HasPrefix(trimmed, "|") && !strings.HasSuffix(trimmed, "|") {
			t.Errorf("unterminated table row at line %d: %q", i+1, line)
		}
	}
}
