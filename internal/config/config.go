package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIOrigin string
	TenantID  string
	TicketID  string

	SnapshotInterval time.Duration
	TicketInterval   time.Duration
	RequestTimeout   time.Duration

	AvgServiceMinutes int

	// NetworkOverride pins the effective connection type ("3g", "slow-2g",
	// ...); empty means probe from observed round trips.
	NetworkOverride string

	RealtimeEnabled bool
	// MetricsAddr exposes /metrics when non-empty.
	MetricsAddr string
}

func Load() Config {
	origin := os.Getenv("QUEUE_API_ORIGIN")
	if origin == "" {
		origin = "http://localhost:8081"
	}

	return Config{
		APIOrigin:         origin,
		TenantID:          os.Getenv("QUEUE_TENANT_ID"),
		TicketID:          os.Getenv("QUEUE_TICKET_ID"),
		SnapshotInterval:  readDurationSeconds("QUEUE_SNAPSHOT_POLL_SECONDS", 15),
		TicketInterval:    readDurationSeconds("QUEUE_TICKET_POLL_SECONDS", 10),
		RequestTimeout:    readDurationSeconds("QUEUE_REQUEST_TIMEOUT_SECONDS", 5),
		AvgServiceMinutes: readInt("QUEUE_AVG_SERVICE_MINUTES", 20),
		NetworkOverride:   os.Getenv("QUEUE_NETWORK_OVERRIDE"),
		RealtimeEnabled:   readBool("QUEUE_REALTIME_ENABLED", true),
		MetricsAddr:       os.Getenv("QUEUE_METRICS_ADDR"),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
