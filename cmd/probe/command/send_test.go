package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedprobe/internal/config"
	"speedprobe/internal/payload"
)

// setSendFlags sets the package-level payload flags for one test and
// restores them afterwards.
func setSendFlags(t *testing.T, hex, preset string) {
	t.Helper()
	origHex, origPreset := sendHex, sendPreset
	t.Cleanup(func() {
		sendHex, sendPreset = origHex, origPreset
	})
	sendHex, sendPreset = hex, preset
}

func TestResolvePayloadHex_Precedence(t *testing.T) {
	cfg := &config.Config{PayloadHex: "de ad be ef"}

	t.Run("hex flag wins", func(t *testing.T) {
		setSendFlags(t, "01 02", "camera")
		got, err := resolvePayloadHex(cfg)
		require.NoError(t, err)
		assert.Equal(t, "01 02", got)
	})

	t.Run("preset beats config", func(t *testing.T) {
		setSendFlags(t, "", "dispatcher")
		got, err := resolvePayloadHex(cfg)
		require.NoError(t, err)
		assert.Equal(t, payload.DispatcherHex, got)
	})

	t.Run("config beats default", func(t *testing.T) {
		setSendFlags(t, "", "")
		got, err := resolvePayloadHex(cfg)
		require.NoError(t, err)
		assert.Equal(t, "de ad be ef", got)
	})

	t.Run("default when nothing set", func(t *testing.T) {
		setSendFlags(t, "", "")
		got, err := resolvePayloadHex(&config.Config{})
		require.NoError(t, err)
		assert.Equal(t, payload.DefaultHex, got)
	})
}

func TestResolvePayloadHex_UnknownPreset(t *testing.T) {
	setSendFlags(t, "", "nope")
	_, err := resolvePayloadHex(&config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preset")
}

// resolvePayloadHex must not reach back into the environment itself; the
// command loads the configuration once and passes it through.
func TestResolvePayloadHex_UsesPassedConfig(t *testing.T) {
	t.Setenv("PAYLOAD_HEX", "ff ff")
	setSendFlags(t, "", "")

	got, err := resolvePayloadHex(&config.Config{PayloadHex: "aa bb"})
	require.NoError(t, err)
	assert.Equal(t, "aa bb", got)
}
