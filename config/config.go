// Package config describes mercurysmtpd's on-disk configuration: the SMTP
// listener, the storage backend, and the HTTP boundary. The structure is
// JSON-compatible (with an optional YAML encoding, see LoadFile) and is
// deserialised once at startup by cmd/mercurysmtpd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SMTPConfig configures the SMTP receiver (daemon/smtpd.Daemon).
type SMTPConfig struct {
	Address        string        `json:"address" yaml:"address"`
	Port           int           `json:"port" yaml:"port"`
	MaxConnections int           `json:"max_connections" yaml:"max_connections"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// StrictSequencing is reserved for a future revision that would reject
	// RCPT/DATA issued out of order instead of tolerating them; the
	// receiver today always accepts the relaxed sequencing regardless of
	// this value.
	StrictSequencing bool `json:"strict_sequencing" yaml:"strict_sequencing"`
}

// S3Config configures best-effort archival of captured message bodies to
// S3. Bucket is required to enable archival; Prefix is optional.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// StorageConfig configures where captured mail is persisted.
type StorageConfig struct {
	SQLitePath    string   `json:"sqlite_path" yaml:"sqlite_path"`
	MailDirectory string   `json:"mail_directory" yaml:"mail_directory"`
	S3            S3Config `json:"s3" yaml:"s3"`
}

// HTTPConfig configures the developer-facing HTTP boundary
// (daemon/mailhttpd.Daemon).
type HTTPConfig struct {
	Address string `json:"address" yaml:"address"`
	Port    int    `json:"port" yaml:"port"`
}

// Config is the top-level, JSON/YAML-compatible configuration structure.
type Config struct {
	SMTP    SMTPConfig    `json:"smtp" yaml:"smtp"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
}

// Default returns a Config with reasonable values for running the server
// on a workstation without any file present.
func Default() Config {
	return Config{
		SMTP: SMTPConfig{
			Address:      "0.0.0.0",
			Port:         2525,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			SQLitePath:    "mercury.db",
			MailDirectory: "mail",
		},
		HTTP: HTTPConfig{
			Address: "127.0.0.1",
			Port:    8025,
		},
	}
}

// LoadFile reads path and deserialises it into a Config seeded with
// Default's values, so that a config file need only set the fields it
// wants to override. The format is chosen by the file's extension: .yaml
// and .yml are parsed as YAML (gopkg.in/yaml.v3), everything else as JSON.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s as YAML: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s as JSON: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields required for the server to start at all.
// Daemon.Initialise methods perform the more detailed per-component checks.
func (c Config) Validate() error {
	if c.SMTP.Port < 1 {
		return fmt.Errorf("config: smtp.port must be set")
	}
	if c.HTTP.Port < 1 {
		return fmt.Errorf("config: http.port must be set")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("config: storage.sqlite_path must be set")
	}
	if c.Storage.MailDirectory == "" {
		return fmt.Errorf("config: storage.mail_directory must be set")
	}
	return nil
}

// S3Enabled reports whether archival to S3 was configured.
func (c Config) S3Enabled() bool {
	return c.Storage.S3.Bucket != ""
}
