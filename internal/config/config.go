package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	MQTTBrokerURL          string `env:"MQTT_BROKER_URL,required"`
	MQTTClientID           string `env:"MQTT_CLIENT_ID" envDefault:"fleet-orchestrator"`
	MQTTUsername           string `env:"MQTT_USERNAME"`
	MQTTPassword           string `env:"MQTT_PASSWORD"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	DeviceTimeoutSeconds   int    `env:"DEVICE_TIMEOUT_SECONDS" envDefault:"45"`
	LastSeenWindowSeconds  int    `env:"LAST_SEEN_WINDOW_SECONDS" envDefault:"30"`
	CommandLeadMs          int    `env:"COMMAND_LEAD_MS" envDefault:"1500"`
	SessionRetentionDays   int    `env:"SESSION_RETENTION_DAYS" envDefault:"30"`
	CommandRateLimitPerMin int    `env:"COMMAND_RATE_LIMIT_PER_MIN" envDefault:"120"`
}

// DeviceTimeout is how long a device may stay silent before it is marked offline.
func (c *Config) DeviceTimeout() time.Duration {
	return time.Duration(c.DeviceTimeoutSeconds) * time.Second
}

// LastSeenWindow is how recent a persisted last_seen_at must be to count as online.
func (c *Config) LastSeenWindow() time.Duration {
	return time.Duration(c.LastSeenWindowSeconds) * time.Second
}

func (c *Config) CommandLead() time.Duration {
	return time.Duration(c.CommandLeadMs) * time.Millisecond
}

func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.DeviceTimeoutSeconds <= 0 {
		return fmt.Errorf("DEVICE_TIMEOUT_SECONDS must be positive")
	}
	if c.LastSeenWindowSeconds <= 0 {
		return fmt.Errorf("LAST_SEEN_WINDOW_SECONDS must be positive")
	}
	if c.CommandLeadMs < 0 {
		return fmt.Errorf("COMMAND_LEAD_MS must not be negative")
	}
	if c.SessionRetentionDays <= 0 {
		return fmt.Errorf("SESSION_RETENTION_DAYS must be positive")
	}
	if c.CommandRateLimitPerMin <= 0 {
		return fmt.Errorf("COMMAND_RATE_LIMIT_PER_MIN must be positive")
	}

	if !strings.HasPrefix(c.MQTTBrokerURL, "tcp://") &&
		!strings.HasPrefix(c.MQTTBrokerURL, "ssl://") &&
		!strings.HasPrefix(c.MQTTBrokerURL, "tls://") &&
		!strings.HasPrefix(c.MQTTBrokerURL, "ws://") &&
		!strings.HasPrefix(c.MQTTBrokerURL, "wss://") &&
		!strings.HasPrefix(c.MQTTBrokerURL, "mqtt://") {
		return fmt.Errorf("MQTT_BROKER_URL must use tcp://, ssl://, tls://, ws://, wss:// or mqtt://")
	}

	// The database fallback only makes sense while it is tighter than the in-memory timeout.
	if c.LastSeenWindowSeconds >= c.DeviceTimeoutSeconds {
		log.Warn().
			Int("lastSeenWindowSeconds", c.LastSeenWindowSeconds).
			Int("deviceTimeoutSeconds", c.DeviceTimeoutSeconds).
			Msg("LAST_SEEN_WINDOW_SECONDS is not below DEVICE_TIMEOUT_SECONDS: offline devices may be reported online")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
