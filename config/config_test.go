package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "socketcan", cfg.Transport)
	assert.Equal(t, "can0", cfg.CANInterface)
	assert.Equal(t, uint8(35), cfg.PreferredAddress)
}

func TestParseArgs_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := ParseArgs([]string{"-transport=actisense", "-serial=/dev/ttyUSB1", "-preferred-address=50"})
	require.NoError(t, err)
	assert.Equal(t, "actisense", cfg.Transport)
	assert.Equal(t, "/dev/ttyUSB1", cfg.SerialDevice)
	assert.Equal(t, uint8(50), cfg.PreferredAddress)
}

func TestParseArgs_EnvOverridesDefaultButNotExplicitFlag(t *testing.T) {
	t.Setenv("N2K_CAN_IF", "can1")
	t.Setenv("N2K_TRANSPORT", "actisense")

	cfg, err := ParseArgs([]string{"-transport=socketcan"})
	require.NoError(t, err)
	assert.Equal(t, "can1", cfg.CANInterface, "env fills in a flag that was not explicitly set")
	assert.Equal(t, "socketcan", cfg.Transport, "an explicitly set flag wins over env")
}

func TestParseArgs_RejectsInvalidTransport(t *testing.T) {
	_, err := ParseArgs([]string{"-transport=bogus"})
	assert.Error(t, err)
}

func TestParseArgs_RejectsOutOfRangeAddress(t *testing.T) {
	_, err := ParseArgs([]string{"-preferred-address=300"})
	assert.Error(t, err)
}
