package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coopdoor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "client_id: coop1\n"))
	require.NoError(t, err)

	assert.Equal(t, "coop1", cfg.ClientID)
	assert.Equal(t, 10*time.Millisecond, cfg.LoopPeriod)
	assert.Equal(t, "govattu", cfg.HAL.GPIO)
	assert.Equal(t, 25*time.Second, cfg.Motor.RunTimeout)
	assert.Equal(t, 20, cfg.Motor.FilterSize)
	assert.Equal(t, 800.0, cfg.Motor.RaisingOverloadMA)
	assert.Equal(t, 4, cfg.Battery.Cells)
	assert.Equal(t, 180*time.Second, cfg.Power.Session)
	assert.Equal(t, "none", cfg.Button.Type)
	assert.Equal(t, 115200, cfg.Console.Baud)
	assert.Empty(t, cfg.MQTT.Host)
	assert.Nil(t, cfg.Motor.In1Pin)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("COOPDOOR_MQTT_HOST", "broker.local")
	path := writeConfig(t, `
client_id: coop2
motor:
  in1_pin: 23
  in2_pin: 24
  run_timeout: 30s
power:
  hold_pin: 17
logging:
  format: LOGFMT
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Motor.In1Pin)
	assert.Equal(t, 23, *cfg.Motor.In1Pin)
	assert.Equal(t, 30*time.Second, cfg.Motor.RunTimeout)
	assert.Equal(t, 17, *cfg.Power.HoldPin)
	assert.Equal(t, "logfmt", cfg.Logging.Format)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"slow loop":   "loop_period: 40ms\n",
		"timeout":     "motor:\n  run_timeout: 100ms\n",
		"low percent": "power:\n  low_percent: 150\n",
		"log format":  "logging:\n  format: xml\n",
		"log level":   "logging:\n  level: loud\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestValidate_Required(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "client_id: coop1\n"))
	require.NoError(t, err)

	noID := *cfg
	noID.ClientID = ""
	assert.Error(t, noID.Validate())

	noSettings := *cfg
	noSettings.Settings = ""
	assert.Error(t, noSettings.Validate())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		log, err := NewLogger(LoggingConfig{Format: format, Level: "debug"})
		require.NoError(t, err, format)
		assert.True(t, log.Core().Enabled(-1), format)
	}
}
