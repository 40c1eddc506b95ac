package config

import (
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-content-flow/internal/wiring"
)

// Config holds typed configuration for the api-gateway service.
type Config struct {
	wiring.Config
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		Config:       wiring.Load(v),
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
