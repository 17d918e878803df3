package main

import (
	"flag"
	"os"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	ShowVersion bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("TOOLBOX_CONFIG", ""),
		"Path to configuration file (env: TOOLBOX_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TOOLBOX_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: TOOLBOX_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TOOLBOX_LOG_FORMAT", "text"),
		"Log format: json, text (env: TOOLBOX_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port", 0,
		"Serve Prometheus metrics on this port (0 = disabled)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
