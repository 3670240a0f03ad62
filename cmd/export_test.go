package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCommand_MarkdownToStdout(t *testing.T) {
	deps, _, _ := testDeps()

	stdout, _, err := execute(NewExportCommand(deps), nil, fixture("phish_paypal.eml"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "## Indicators of Compromise")
	assert.NotContains(t, stdout, "123-45-6789")
}

func TestExportCommand_EMLToDirectory(t *testing.T) {
	deps, _, _ := testDeps()
	dir := t.TempDir()

	_, stderr, err := execute(NewExportCommand(deps), nil, fixture("phish_paypal.eml"), "--format", "eml", "--out", dir)
	require.NoError(t, err)

	dest := filepath.Join(dir, "phish_paypal.sanitized.eml")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Subject: URGENT: Your PayPal Account Has Been Limited")
	assert.NotContains(t, string(data), "123-45-6789")
	assert.Contains(t, stderr, dest)
}

func TestExportCommand_InvalidFormat(t *testing.T) {
	deps, _, _ := testDeps()

	_, _, err := execute(NewExportCommand(deps), nil, fixture("clean.eml"), "--format", "pdf")
	require.Error(t, err)
}

func TestExportPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "report.out")

	tests := []struct {
		format string
		out    string
		want   string
	}{
		{"markdown", dir, filepath.Join(dir, "msg.md")},
		{"json", dir, filepath.Join(dir, "msg.json")},
		{"EML", dir, filepath.Join(dir, "msg.sanitized.eml")},
		{"json", file, file},
	}
	for _, tt := range tests {
		got := exportPath("/tmp/in/msg.eml", tt.out, tt.format)
		if got != tt.want {
			t.Errorf("exportPath(%q, %q) = %q, want %q", tt.out, tt.format, got, tt.want)
		}
		if !strings.HasPrefix(got, dir) {
			t.Errorf("exportPath() = %q, outside %q", got, dir)
		}
	}
}
