// Package config provides XML-based configuration management for the doctools server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DocTools"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Staging limits applied to every session
	Staging StagingConfig `xml:"Staging"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
}

// StagingConfig caps what a single session may hold. Zero disables a limit.
type StagingConfig struct {
	MaxFilesPerSession int    `xml:"MaxFilesPerSession"`
	MaxTotalSize       string `xml:"MaxTotalSize"`
}

// ProcessingConfig contains session and simulated-run settings
type ProcessingConfig struct {
	TickIntervalMs         int     `xml:"TickIntervalMs"`
	MaxProgressStep        float64 `xml:"MaxProgressStep"`
	MaxSessions            int     `xml:"MaxSessions"`
	SessionTimeoutMinutes  int     `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int     `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool    `xml:"EnableCompression"`
	CompressionLevel       int     `xml:"CompressionLevel"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	ExposeErrorDetails   bool   `xml:"ExposeErrorDetails"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "600M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Staging: StagingConfig{
			MaxFilesPerSession: 50,
			MaxTotalSize:       "500MiB",
		},
		Processing: ProcessingConfig{
			TickIntervalMs:         200,
			MaxProgressStep:        15,
			MaxSessions:            100,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			ExposeErrorDetails:   false,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- DocTools Server Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that cannot be corrected silently.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Staging.MaxFilesPerSession < 0 {
		return fmt.Errorf("MaxFilesPerSession must not be negative")
	}
	if _, err := c.MaxTotalBytes(); err != nil {
		return err
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves the uploads directory along with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = strings.ToLower(level)
	}

	if maxFiles := os.Getenv("DOCTOOLS_MAX_FILES"); maxFiles != "" {
		if n, err := strconv.Atoi(maxFiles); err == nil && n >= 0 {
			c.Staging.MaxFilesPerSession = n
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// MaxTotalBytes parses Staging.MaxTotalSize. An empty value or "0" disables the limit.
func (c *AppConfig) MaxTotalBytes() (int64, error) {
	raw := strings.TrimSpace(c.Staging.MaxTotalSize)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid MaxTotalSize %q: %w", raw, err)
	}
	return int64(n), nil
}

// TickInterval returns the simulated processing tick.
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Processing.TickIntervalMs) * time.Millisecond
}

// SessionTimeout returns how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns the period of the background cleanup.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
