package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEmptyCatalog(t *testing.T) {
	out, err := runCLI(t, "search", "wireless headphones")
	require.NoError(t, err)
	assert.Contains(t, out, `No results found for "wireless headphones"`)
	assert.Contains(t, out, "session:")
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := runCLI(t, "search")
	require.Error(t, err)
}

func TestSearchRejectsExcessiveLimit(t *testing.T) {
	_, err := runCLI(t, "search", "headphones", "--limit", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestSearchJSONFormatEmptyResults(t *testing.T) {
	out, err := runCLI(t, "search", "headphones", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"results"`)
	assert.Contains(t, out, `"session_id"`)
}
