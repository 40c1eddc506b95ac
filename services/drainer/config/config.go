package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
)

// Config holds typed configuration for the drainer service.
type Config struct {
	wiring.Config
	LogLevel      string
	DrainSchedule string
	StaleAfter    time.Duration
	LeaderTTL     time.Duration
	MetricsAddr   string
	OTelEndpoint  string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		Config:        wiring.Load(v),
		LogLevel:      v.GetString("log_level"),
		DrainSchedule: v.GetString("drain_schedule"),
		StaleAfter:    v.GetDuration("stale_after"),
		LeaderTTL:     v.GetDuration("leader_ttl"),
		MetricsAddr:   v.GetString("metrics_addr"),
		OTelEndpoint:  v.GetString("otel_endpoint"),
	}
}
