package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
)

func TestAnalyzeCommand_Text(t *testing.T) {
	deps, _, _ := testDeps()

	stdout, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("phish_paypal.eml"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "URGENT: Your PayPal Account Has Been Limited")
	assert.Contains(t, stdout, "High (score 150)")
	assert.Contains(t, stdout, "Indicators (")
}

func TestAnalyzeCommand_CleanMessage(t *testing.T) {
	deps, _, _ := testDeps()

	stdout, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("clean.eml"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "Low (score 0)")
	assert.NotContains(t, stdout, "Indicators (")
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	deps, _, _ := testDeps()

	stdout, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("phish_paypal.eml"), "--format", "json")
	require.NoError(t, err)

	var result struct {
		Threat struct {
			Level string `json:"level"`
			Score int    `json:"score"`
		} `json:"threat"`
		Redaction struct {
			RedactedText string `json:"redacted_text"`
		} `json:"redaction"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "High", result.Threat.Level)
	assert.Equal(t, 150, result.Threat.Score)
	assert.NotContains(t, result.Redaction.RedactedText, "123-45-6789")
}

func TestAnalyzeCommand_YAMLFromGlobalOutput(t *testing.T) {
	deps, _, _ := testDeps()
	deps.OutputFormat = config.OutputFormatYAML

	stdout, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("invoice_attachments.eml"))
	require.NoError(t, err)

	var summary analysisSummary
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, 30, summary.Score)
	assert.Equal(t, "Medium", string(summary.Level))
}

func TestAnalyzeCommand_Markdown(t *testing.T) {
	deps, _, _ := testDeps()

	stdout, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("phish_paypal.eml"), "-f", "md")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "# URGENT: Your PayPal Account Has Been Limited Analysis"))
	assert.Contains(t, stdout, "## Threat Indicators")
}

func TestAnalyzeCommand_InvalidFormat(t *testing.T) {
	deps, _, _ := testDeps()

	_, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("clean.eml"), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestAnalyzeCommand_MissingFile(t *testing.T) {
	deps, _, _ := testDeps()

	_, _, err := execute(NewAnalyzeCommand(deps), nil, "does-not-exist.eml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.eml")
}

func TestAnalyzeCommand_StoreAndPublish(t *testing.T) {
	deps, st, rdb := testDeps()

	_, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("phish_paypal.eml"), "--store", "--publish")
	require.NoError(t, err)

	records, err := st.ListRecent(testContext(t), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fixture("phish_paypal.eml"), records[0].Source)
	assert.Equal(t, 1, rdb.count(events.ChannelAnalysisCompleted))
	assert.Equal(t, 1, rdb.closed)
}

func TestAnalyzeCommand_PublishWithoutRedis(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Config.Redis.Addr = ""

	_, _, err := execute(NewAnalyzeCommand(deps), nil, fixture("clean.eml"), "--publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestAnalyzeCommand_InvalidPatternWarns(t *testing.T) {
	deps, _, _ := testDeps()

	_, stderr, err := execute(NewAnalyzeCommand(deps), nil, fixture("clean.eml"), "--pattern", "([")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"(["`)
}

func TestRedactionFlags_Apply(t *testing.T) {
	base := redact.DefaultOptions()
	base.CustomPatterns = []string{"A"}
	f := &redactionFlags{noEmails: true, noNames: true, patterns: []string{"B"}}

	got := f.apply(base)

	assert.False(t, got.Emails)
	assert.False(t, got.Names)
	assert.Equal(t, base.Phones, got.Phones)
	assert.Equal(t, []string{"A", "B"}, got.CustomPatterns)
	assert.Equal(t, []string{"A"}, base.CustomPatterns)
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		explicit string
		global   config.OutputFormat
		want     string
	}{
		{"", config.OutputFormatText, "text"},
		{"", config.OutputFormatJSON, "json"},
		{"Markdown", config.OutputFormatJSON, "markdown"},
	}
	for _, tt := range tests {
		if got := resolveFormat(tt.explicit, tt.global); got != tt.want {
			t.Errorf("resolveFormat(%q, %q) = %q, want %q", tt.explicit, tt.global, got, tt.want)
		}
	}
}
