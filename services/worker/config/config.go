package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
)

// Config holds typed configuration for the worker service.
type Config struct {
	wiring.Config
	LogLevel     string
	GroupID      string
	ClaimTTL     time.Duration
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		Config:       wiring.Load(v),
		LogLevel:     v.GetString("log_level"),
		GroupID:      v.GetString("group_id"),
		ClaimTTL:     v.GetDuration("claim_ttl"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
