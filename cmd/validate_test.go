package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunValidate(t *testing.T) {
	rulesPath := writeFile(t, "rules.yml", `
rules:
  - id: 1
    window: true
  - id: 2
    integrity_check: true
`)
	cfgPath := writeFile(t, "config.yml", `
schc:
  profile: "ietf-draft-100"
  rules_file: "`+rulesPath+`"
  transport:
    listen: "127.0.0.1:7000"
  sinks:
    - type: console
      options:
        format: hex
`)

	var out bytes.Buffer
	require.NoError(t, runValidate(cfgPath, &out))
	assert.Equal(t, "VALID: profile ietf-draft-100, 2 rule(s), 1 sink(s), listen 127.0.0.1:7000\n", out.String())
}

func TestRunValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown profile", "schc:\n  profile: nope\n"},
		{"missing rules file", "schc:\n  rules_file: /nonexistent/rules.yml\n"},
		{"bad sink option", "schc:\n  sinks:\n    - type: console\n      options:\n        colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runValidate(writeFile(t, "config.yml", tt.content), &out)
			assert.Error(t, err)
			assert.Empty(t, out.String())
		})
	}
}
