package config

import (
	"os"
	"path/filepath"
)

// Config holds daemon configuration.
type Config struct {
	RESTAddress            string
	DefaultSaveDir         string
	SignalServerURL        string
	ChunkSize              int64
	MaxConcurrentTransfers int
	EventBufferSize        int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	saveDir := filepath.Join(homeDir, "Downloads", "relay")

	return &Config{
		RESTAddress:            "127.0.0.1:8080",
		DefaultSaveDir:         saveDir,
		SignalServerURL:        "ws://localhost:8080",
		ChunkSize:              256 * 1024, // 256 KiB
		MaxConcurrentTransfers: 10,
		EventBufferSize:        100,
	}
}

// LoadConfig loads configuration from file (simplified - just returns default)
func LoadConfig(configPath string) (*Config, error) {
	// For simplicity, return default config
	// In production, this would parse YAML file
	return DefaultConfig(), nil
}
