package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimits_GlobalCap(t *testing.T) {
	limits := newConnectionLimits(2, 10, 1000, 1000)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.2")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, limitReasonGlobal, reason)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIPCap(t *testing.T) {
	limits := newConnectionLimits(100, 2, 1000, 1000)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitReasonPerIP, reason)

	// Per-IP rejection must roll back the global slot
	assert.Equal(t, int64(2), limits.Current())

	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)
}

func TestConnectionLimits_ConnectRate(t *testing.T) {
	limits := newConnectionLimits(100, 100, 1, 2)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitReasonRate, reason)

	// Other IPs have their own bucket
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)
}
