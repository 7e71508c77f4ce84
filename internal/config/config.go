// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Source   SourceConfig
	Import   ImportConfig
	Registry RegistryConfig
	Inbox    InboxConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings for the report server.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, imports can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 15m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15m"`

	// UploadMaxFileSize is the largest accepted workbook in bytes (default: 100MB)
	UploadMaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// APIKeys, when set, are required in X-API-Key to start an import over HTTP
	APIKeys []string `env:"SERVER_API_KEYS"`
}

// DatabaseConfig selects the sink and holds its connection settings.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory (default: postgres)
	Driver string `env:"SINK_DRIVER" default:"postgres"`

	// URL is the connection string; a file path for sqlite.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SourceConfig controls how input files are read.
type SourceConfig struct {
	// Path is the workbook, CSV file or CSV directory to import
	Path string `env:"SOURCE_PATH"`

	// Sheets limits a run to these sheet labels (comma-separated)
	Sheets []string `env:"SOURCE_SHEETS"`

	// HeaderSearchRows is how many leading rows may precede the header (default: 20)
	HeaderSearchRows int `env:"SOURCE_HEADER_SEARCH_ROWS" default:"20"`

	// Encoding of CSV files: utf-8 or windows-1252 (default: utf-8)
	Encoding string `env:"SOURCE_ENCODING" default:"utf-8"`

	// Delimiter of CSV files: auto, ",", ";" or tab (default: auto)
	Delimiter string `env:"SOURCE_CSV_DELIMITER" default:"auto"`
}

// ImportConfig tunes the import engine.
type ImportConfig struct {
	// BatchSize is the number of rows written per batch (default: 10000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"10000"`

	// SheetTimeout bounds a single sheet; 0 disables (default: 10m)
	SheetTimeout time.Duration `env:"IMPORT_SHEET_TIMEOUT" default:"10m"`

	// MaxConcurrent is the number of runs allowed at once (default: 1)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
}

// RegistryConfig locates the table registry.
type RegistryConfig struct {
	// Path is a YAML or TOML registry file; empty uses the built-in registry
	Path string `env:"REGISTRY_PATH"`
}

// InboxConfig holds settings for the watched drop directory.
type InboxConfig struct {
	// Dir is the directory to watch; empty disables the inbox
	Dir string `env:"INBOX_DIR"`

	// Pattern selects files to import (default: *.{xlsx,xlsm,csv})
	Pattern string `env:"INBOX_PATTERN" default:"*.{xlsx,xlsm,csv}"`

	// ProcessedDir receives imported files, relative to Dir (default: Uploaded)
	ProcessedDir string `env:"INBOX_PROCESSED_DIR" default:"Uploaded"`

	// Debounce is the quiet period before a changed file is imported (default: 2s)
	Debounce time.Duration `env:"INBOX_DEBOUNCE" default:"2s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
