package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate cleanly, got: %v", err)
	}
}

func TestLoadFileJSONOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mercury.json")
	body := `{"smtp": {"port": 2526, "max_connections": 10}, "storage": {"sqlite_path": "x.db", "mail_directory": "x"}, "http": {"address": "0.0.0.0", "port": 9000}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SMTP.Port != 2526 {
		t.Errorf("SMTP.Port = %d, want 2526", cfg.SMTP.Port)
	}
	if cfg.SMTP.MaxConnections != 10 {
		t.Errorf("SMTP.MaxConnections = %d, want 10", cfg.SMTP.MaxConnections)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("HTTP.Port = %d, want 9000", cfg.HTTP.Port)
	}
	// Untouched fields still carry Default()'s values.
	if cfg.SMTP.ReadTimeout != 5*time.Second {
		t.Errorf("SMTP.ReadTimeout = %v, want default 5s", cfg.SMTP.ReadTimeout)
	}
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mercury.yaml")
	body := "smtp:\n  port: 3025\nstorage:\n  sqlite_path: y.db\n  mail_directory: y\nhttp:\n  port: 9001\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SMTP.Port != 3025 {
		t.Errorf("SMTP.Port = %d, want 3025", cfg.SMTP.Port)
	}
}

func TestS3Enabled(t *testing.T) {
	cfg := Default()
	if cfg.S3Enabled() {
		t.Error("Default() should not enable S3 archival")
	}
	cfg.Storage.S3.Bucket = "bucket"
	if !cfg.S3Enabled() {
		t.Error("setting a bucket should enable S3 archival")
	}
}

func TestValidateRejectsMissingPorts(t *testing.T) {
	cfg := Default()
	cfg.SMTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error when smtp.port is unset")
	}
}
