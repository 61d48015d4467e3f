package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("DeviceTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{DeviceTimeoutSeconds: 45}
		assert.Equal(t, 45*time.Second, cfg.DeviceTimeout())
	})

	t.Run("LastSeenWindow converts seconds to duration", func(t *testing.T) {
		cfg := &Config{LastSeenWindowSeconds: 30}
		assert.Equal(t, 30*time.Second, cfg.LastSeenWindow())
	})

	t.Run("CommandLead converts milliseconds to duration", func(t *testing.T) {
		cfg := &Config{CommandLeadMs: 1500}
		assert.Equal(t, 1500*time.Millisecond, cfg.CommandLead())
	})

	t.Run("SessionRetention converts days to duration", func(t *testing.T) {
		cfg := &Config{SessionRetentionDays: 2}
		assert.Equal(t, 48*time.Hour, cfg.SessionRetention())
	})
}

func validConfig() *Config {
	return &Config{
		MQTTBrokerURL:          "tcp://localhost:1883",
		DeviceTimeoutSeconds:   45,
		LastSeenWindowSeconds:  30,
		CommandLeadMs:          1500,
		SessionRetentionDays:   30,
		CommandRateLimitPerMin: 120,
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("rejects non-positive device timeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.DeviceTimeoutSeconds = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative command lead", func(t *testing.T) {
		cfg := validConfig()
		cfg.CommandLeadMs = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown broker scheme", func(t *testing.T) {
		cfg := validConfig()
		cfg.MQTTBrokerURL = "http://localhost:1883"
		assert.Error(t, cfg.Validate())
	})

	t.Run("window above timeout only warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.LastSeenWindowSeconds = 60
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "MQTT_BROKER_URL", "MQTT_CLIENT_ID",
		"LOG_LEVEL", "DEVICE_TIMEOUT_SECONDS", "LAST_SEEN_WINDOW_SECONDS", "COMMAND_LEAD_MS",
	}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")
		os.Unsetenv("PORT")
		os.Unsetenv("MQTT_CLIENT_ID")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("DEVICE_TIMEOUT_SECONDS")
		os.Unsetenv("LAST_SEEN_WINDOW_SECONDS")
		os.Unsetenv("COMMAND_LEAD_MS")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBrokerURL)
		assert.Equal(t, "fleet-orchestrator", cfg.MQTTClientID)
		assert.Equal(t, 45, cfg.DeviceTimeoutSeconds)
		assert.Equal(t, 30, cfg.LastSeenWindowSeconds)
		assert.Equal(t, 1500, cfg.CommandLeadMs)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")
		os.Setenv("PORT", "3000")
		os.Setenv("DEVICE_TIMEOUT_SECONDS", "20")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 20, cfg.DeviceTimeoutSeconds)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required MQTT_BROKER_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("MQTT_BROKER_URL")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")

		_, err := Load()
		assert.Error(t, err)
	})
}
