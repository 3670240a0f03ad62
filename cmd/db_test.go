package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailtriage/pkg/db"
)

func TestDbCommand_HasSubcommands(t *testing.T) {
	cmd := NewDbCommand(nil)

	assert.Equal(t, "db", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)
	for _, name := range []string{"dry-run", "target", "yes"} {
		assert.NotNil(t, migrateCmd.Flags().Lookup(name), "migrate should have --%s", name)
	}

	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)
	assert.NotNil(t, statusCmd.Flags().Lookup("format"))
}

func TestDbMigrate_ConnectError(t *testing.T) {
	deps, _, _ := testDeps()

	_, _, err := execute(NewDbCommand(deps), nil, "migrate", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to database")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "Apply? "); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Apply? " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestOutputMigrationStatusText(t *testing.T) {
	applied := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	status := &db.MigrationStatus{
		Applied: []db.MigrationStatusEntry{{Version: "001", Name: "create_analyses", AppliedAt: &applied}},
		Pending: []db.MigrationStatusEntry{{Version: "002", Name: "add_source_index"}},
		Drift:   []db.MigrationStatusEntry{{Version: "000", Name: "legacy", AppliedAt: &applied}},
	}

	var out bytes.Buffer
	require.NoError(t, outputMigrationStatusText(&out, status))

	text := out.String()
	assert.Contains(t, text, "Applied Migrations (1)")
	assert.Contains(t, text, "2026-10-01 09:00:00")
	assert.Contains(t, text, "Pending Migrations (1)")
	assert.Contains(t, text, "add_source_index")
	assert.Contains(t, text, "Summary: 1 applied, 1 pending")
	assert.Contains(t, text, "1 drift")
}

func TestOutputMigrationStatusText_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, outputMigrationStatusText(&out, &db.MigrationStatus{}))
	assert.Equal(t, "No migrations found.\n", out.String())
}
