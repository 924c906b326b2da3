package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const TestDebugLevel = "DEBUG"

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Storage.DefaultRegion != "us-east-1" {
		t.Errorf("Expected DefaultRegion to be us-east-1, got %s", cfg.Storage.DefaultRegion)
	}
	if cfg.Storage.MaxListingPageSize != 1000 || cfg.Storage.MaxCatalogPageSize != 1000 {
		t.Errorf("Expected page sizes of 1000, got %d/%d",
			cfg.Storage.MaxListingPageSize, cfg.Storage.MaxCatalogPageSize)
	}
	if cfg.Storage.MaxRetries != 1 {
		t.Errorf("Expected MaxRetries to be 1, got %d", cfg.Storage.MaxRetries)
	}
	if !cfg.Storage.UseHTTPS || !cfg.Storage.VerifyTLS {
		t.Error("Expected HTTPS and TLS verification to be enabled by default")
	}
	if cfg.SizeWalk.ProgressBatch != 1000 {
		t.Errorf("Expected ProgressBatch to be 1000, got %d", cfg.SizeWalk.ProgressBatch)
	}
	if cfg.SizeWalk.ProgressInterval != 250*time.Millisecond {
		t.Errorf("Expected ProgressInterval to be 250ms, got %v", cfg.SizeWalk.ProgressInterval)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: NewDefault,
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogLevel = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "LogLevel",
		},
		{
			name: "retry attempts out of range",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Retry.MaxAttempts = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "MaxAttempts",
		},
		{
			name: "missing region",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.DefaultRegion = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "DefaultRegion",
		},
		{
			name: "page size out of range",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.MaxListingPageSize = 5000
				return cfg
			},
			wantErr: true,
			errMsg:  "max_listing_page_size",
		},
		{
			name: "page size clamped by normalize",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.MaxListingPageSize = 5000
				cfg.Storage.MaxCatalogPageSize = -4
				cfg.Normalize()
				return cfg
			},
		},
		{
			name: "bad chunk size",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Transfer.ChunkSize = "12"
				return cfg
			},
			wantErr: true,
			errMsg:  "chunk_size",
		},
		{
			name: "zero progress batch",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.SizeWalk.ProgressBatch = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "ProgressBatch",
		},
		{
			name: "lowercase log level after normalize",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogLevel = "warning"
				cfg.Normalize()
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  metrics_port: 9090

storage:
  default_region: eu-west-1
  endpoint: localhost:9000
  use_https: false
  virtual_addressing: false
  max_listing_page_size: 250

size_walk:
  progress_interval: 2s
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9090 {
		t.Errorf("Expected MetricsPort to be 9090, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Storage.Endpoint != "localhost:9000" {
		t.Errorf("Expected Endpoint to be localhost:9000, got %s", cfg.Storage.Endpoint)
	}
	if cfg.Storage.UseHTTPS {
		t.Error("Expected UseHTTPS to be false")
	}
	if cfg.SizeWalk.ProgressInterval != 2*time.Second {
		t.Errorf("Expected ProgressInterval to be 2s, got %v", cfg.SizeWalk.ProgressInterval)
	}
	if !cfg.Storage.VerifyTLS {
		t.Error("Expected VerifyTLS to keep its default")
	}

	d := cfg.Defaults()
	if d.Region != "eu-west-1" || d.MaxListingPageSize != 250 || d.VirtualAddressing {
		t.Errorf("unexpected connection defaults: %+v", d)
	}
}

func TestLoadFromBytesJSON(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromBytes([]byte(`{"storage": {"default_region": "ca-central-1", "max_catalog_page_size": 20}}`))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}
	if cfg.Storage.DefaultRegion != "ca-central-1" {
		t.Errorf("Expected region ca-central-1, got %s", cfg.Storage.DefaultRegion)
	}
	if cfg.Storage.MaxCatalogPageSize != 20 {
		t.Errorf("Expected catalog page size 20, got %d", cfg.Storage.MaxCatalogPageSize)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"S3VFS_LOG_LEVEL":          "error",
		"S3VFS_METRICS_PORT":       "9090",
		"S3VFS_REGION":             "us-west-2",
		"S3VFS_ENDPOINT":           "http://localhost:4566",
		"S3VFS_USE_HTTPS":          "false",
		"S3VFS_VIRTUAL_ADDRESSING": "false",
		"S3VFS_MAX_PAGE_SIZE":      "100",
		"S3VFS_SCRATCH_DIR":        "/tmp/s3vfs",
		"S3VFS_PROFILES_DIR":       "/etc/s3vfs/profiles",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Storage.DefaultRegion != "us-west-2" {
		t.Errorf("Expected region us-west-2, got %s", cfg.Storage.DefaultRegion)
	}
	if cfg.Storage.UseHTTPS || cfg.Storage.VirtualAddressing {
		t.Error("Expected https and virtual addressing to be disabled")
	}
	if cfg.Storage.MaxListingPageSize != 100 {
		t.Errorf("Expected page size 100, got %d", cfg.Storage.MaxListingPageSize)
	}
	if cfg.Transfer.ScratchDir != "/tmp/s3vfs" {
		t.Errorf("Expected scratch dir /tmp/s3vfs, got %s", cfg.Transfer.ScratchDir)
	}
	if cfg.Profiles.Directory != "/etc/s3vfs/profiles" {
		t.Errorf("Expected profiles dir, got %s", cfg.Profiles.Directory)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("S3VFS_MAX_PAGE_SIZE", "lots")
	if err := NewDefault().LoadFromEnv(); err == nil {
		t.Error("Expected error for non-numeric page size")
	}
}

func TestSaveToFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "subdir", "saved_config.yaml")

	cfg := NewDefault()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.SizeWalk.ProgressInterval = time.Second

	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	newCfg := NewDefault()
	if err := newCfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if newCfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", newCfg.Global.LogLevel)
	}
	if newCfg.SizeWalk.ProgressInterval != time.Second {
		t.Errorf("Expected ProgressInterval to round-trip, got %v", newCfg.SizeWalk.ProgressInterval)
	}
}

func TestChunkBytes(t *testing.T) {
	cfg := NewDefault()
	n, err := cfg.ChunkBytes()
	if err != nil || n != 1<<20 {
		t.Errorf("ChunkBytes() = %d, %v; want 1MiB", n, err)
	}
}
