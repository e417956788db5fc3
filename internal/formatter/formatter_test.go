package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	got := Format("--rest ${rest_hostname}:${rest_port}", "localhost", "3000", "schema")
	assert.Equal(t, "--rest localhost:3000", got)
}

func TestFormatWithSchema(t *testing.T) {
	got := Format("--rest ${rest_hostname}:${rest_port} --rest-schema ${rest_schema}", "localhost", "3000", "schema")
	assert.Equal(t, "--rest localhost:3000 --rest-schema schema", got)
}

func TestFormatNoPlaceholders(t *testing.T) {
	got := Format("--fixed-args", "localhost", "3000", "schema")
	assert.Equal(t, "--fixed-args", got)
}

func TestFormatReplacementNotRescanned(t *testing.T) {
	// hostname value itself contains a placeholder-looking substring; it must
	// not be expanded by the subsequent port/schema substitutions.
	got := Format("${rest_hostname}|${rest_port}", "${rest_port}", "9000", "s")
	assert.Equal(t, "${rest_port}|9000", got)
}
