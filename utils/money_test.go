package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformFeeCents(t *testing.T) {
	assert.Equal(t, int64(1000), PlatformFeeCents(10000, 10))
	// Truncates toward zero.
	assert.Equal(t, int64(999), PlatformFeeCents(9999, 10))
	assert.Equal(t, int64(0), PlatformFeeCents(0, 10))
	assert.Equal(t, int64(0), PlatformFeeCents(10000, 0))
	assert.Equal(t, int64(0), PlatformFeeCents(-100, 10))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "90.00", FormatCents(9000))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-12.34", FormatCents(-1234))
	assert.Equal(t, "0.00", FormatCents(0))
}
