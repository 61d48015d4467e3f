package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Upper bound for a single presence write (last_seen_at touch)
const PresenceWriteTimeout = 5 * time.Second

// MQTT client timings
const (
	MQTTConnectTimeout    = 10 * time.Second
	MQTTOperationTimeout  = 5 * time.Second
	MQTTKeepAlive         = 30 * time.Second
	MQTTMaxReconnectDelay = 60 * time.Second
)

// Background job intervals
const CleanupJobInterval = 1 * time.Hour

// Bridge stream keepalive
const BridgeHeartbeatInterval = 30 * time.Second

// Device scans are broadcast to the whole fleet, so they are throttled harder than commands.
const ScanRateLimitPerMin = 6
