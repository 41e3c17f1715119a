package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.OscHost)
	assert.Equal(t, 57120, cfg.OscPort)
	assert.Equal(t, 80*time.Millisecond, cfg.CanvasCooldown)
	assert.Equal(t, 80*time.Millisecond, cfg.TriggerCooldown)
	assert.Equal(t, 10*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 120*time.Second, cfg.InactivityTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OSC_PORT", "9000")
	t.Setenv("CANVAS_COOLDOWN", "200ms")
	t.Setenv("INACTIVITY_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.OscPort)
	assert.Equal(t, 200*time.Millisecond, cfg.CanvasCooldown)
	assert.Equal(t, time.Minute, cfg.InactivityTimeout)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Run("invalid port", func(t *testing.T) {
		t.Setenv("OSC_PORT", "70000")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("non-numeric port", func(t *testing.T) {
		t.Setenv("OSC_PORT", "maxmsp")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("TRIGGER_COOLDOWN", "80")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("timeout not above reaper interval", func(t *testing.T) {
		t.Setenv("INACTIVITY_TIMEOUT", "5s")
		_, err := Load()
		assert.Error(t, err)
	})
}
