package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mailtriage/pkg/buildinfo"
)

func TestVersionCommand_Text(t *testing.T) {
	stdout, _, err := execute(NewVersionCommand(), nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "mailtriage "))
	assert.Contains(t, stdout, "Go version:")
}

func TestVersionCommand_YAML(t *testing.T) {
	stdout, _, err := execute(NewVersionCommand(), nil, "--format", "yaml")
	require.NoError(t, err)

	var info buildinfo.Info
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, ServiceName, info.ServiceName)
}

func TestVersionCommand_InvalidFormat(t *testing.T) {
	_, _, err := execute(NewVersionCommand(), nil, "--format", "xml")
	require.Error(t, err)
}
