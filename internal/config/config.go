package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Constants for default paths
const (
	defaultUploadPath = "./uploads"
	defaultSQLitePath = "./data.db"
)

// Config represents the application configuration
type Config struct {
	Port            int     `mapstructure:"port"`              // HTTP listen port
	BaseURL         string  `mapstructure:"base_url"`          // Base URL for share links
	UploadPath      string  `mapstructure:"upload_path"`       // Sandbox root for uploaded files
	SQLitePath      string  `mapstructure:"sqlite_path"`       // Path to the SQLite database
	GeoIPPath       string  `mapstructure:"geoip_path"`        // Optional MaxMind .mmdb file; empty disables geo lookup
	MaxSize         float64 `mapstructure:"max_size_mib"`      // Maximum size per uploaded file in MiB
	StreamingBuffer int     `mapstructure:"stream_buffer_kib"` // Read buffer for file streaming in KiB
}

// LoadConfig loads the configuration from config.yaml, falling back to
// defaults. Every key can be overridden with a SHAREQR_ environment variable.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080/")
	v.SetDefault("upload_path", defaultUploadPath)
	v.SetDefault("sqlite_path", defaultSQLitePath)
	v.SetDefault("geoip_path", "")
	v.SetDefault("max_size_mib", 50.0)
	v.SetDefault("stream_buffer_kib", 64)

	v.SetEnvPrefix("shareqr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) MaxSizeToBytes() int64 {
	return int64(c.MaxSize * 1024 * 1024)
}

func (c *Config) StreamingBufferSizeToBytes() int {
	return c.StreamingBuffer * 1024
}

// ShareURL builds the public share link for an upload session.
func (c *Config) ShareURL(uploadID string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/share/" + uploadID
}

// QRURL builds the public QR image link for an upload session.
func (c *Config) QRURL(uploadID string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/api/qr/" + uploadID
}
