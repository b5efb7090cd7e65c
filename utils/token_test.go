package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActionToken(t *testing.T) {
	raw, hash, err := NewActionToken()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, raw)
	assert.Equal(t, hash, HashActionToken(raw))

	raw2, hash2, err := NewActionToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
	assert.NotEqual(t, hash, hash2)
}

func TestHashActionTokenIsDeterministic(t *testing.T) {
	assert.Equal(t, HashActionToken("abc"), HashActionToken("abc"))
	assert.NotEqual(t, HashActionToken("abc"), HashActionToken("abd"))
}
