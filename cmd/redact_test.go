package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
)

func TestRedactCommand_Stdin(t *testing.T) {
	deps, _, _ := testDeps()
	in := strings.NewReader("Contact john@example.com or call 555-123-4567. SSN: 123-45-6789")

	stdout, _, err := execute(NewRedactCommand(deps), in)
	require.NoError(t, err)

	assert.Equal(t, "Contact [REDACTED]@example.com or call [REDACTED-PHONE]. SSN: [REDACTED-SSN]", stdout)
}

func TestRedactCommand_SelectedCategories(t *testing.T) {
	deps, _, _ := testDeps()
	in := strings.NewReader("Contact john@example.com or call 555-123-4567.")

	stdout, stderr, err := execute(NewRedactCommand(deps), in, "-", "--phones", "--show-redactions")
	require.NoError(t, err)

	assert.Equal(t, "Contact john@example.com or call [REDACTED-PHONE].", stdout)
	assert.Contains(t, stderr, "1 redaction(s)")
}

func TestRedactCommand_CustomPattern(t *testing.T) {
	deps, _, _ := testDeps()
	in := strings.NewReader("Employee EMP-12345 reported it")

	stdout, _, err := execute(NewRedactCommand(deps), in, "--pattern", `EMP-[0-9]{5}`)
	require.NoError(t, err)

	assert.Equal(t, "Employee "+redact.TokenCustom+" reported it", stdout)
}

func TestRedactCommand_EMLBody(t *testing.T) {
	deps, _, _ := testDeps()
	deps.OutputFormat = config.OutputFormatJSON

	stdout, _, err := execute(NewRedactCommand(deps), nil, fixture("phish_paypal.eml"), "--eml")
	require.NoError(t, err)

	var result redact.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.NotContains(t, result.RedactedText, "123-45-6789")
	assert.NotContains(t, result.RedactedText, "Received:")
	assert.Positive(t, result.RedactionCount)
}

func TestRedactCommand_MissingFile(t *testing.T) {
	deps, _, _ := testDeps()

	_, _, err := execute(NewRedactCommand(deps), nil, "missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
}
