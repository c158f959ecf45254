package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID_PrefixAndOrdering(t *testing.T) {
	first := GenerateID("job")
	second := GenerateID("job")

	require.True(t, strings.HasPrefix(first, "job-"))
	assert.NotEqual(t, first, second)
	assert.Less(t, first, second, "ids generated in sequence should sort in sequence")
}

func TestGenerateID_NoPrefix(t *testing.T) {
	id := GenerateID("")
	assert.Len(t, id, 26)
}

func TestGenerateConnectionID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateConnectionID(), GenerateConnectionID())
}
