package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReferenceNumber(t *testing.T) {
	// 2026-10-14 20:30 UTC is already the 15th in Manila.
	now := time.Date(2026, 10, 14, 20, 30, 0, 0, time.UTC)

	ref, err := GenerateReferenceNumber(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^REG-20261015-[0-9A-F]{8}$`), ref)

	other, err := GenerateReferenceNumber(now)
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)
}
