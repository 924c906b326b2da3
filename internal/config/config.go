package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/pkg/utils"
)

var validate = validator.New()

// Configuration represents the complete plugin configuration
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Storage     StorageConfig     `yaml:"storage"`
	Transfer    TransferConfig    `yaml:"transfer"`
	SizeWalk    SizeWalkConfig    `yaml:"size_walk"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
	Retry       RetryConfig       `yaml:"retry"`
}

// GlobalConfig represents global settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFormat   string `yaml:"log_format" validate:"oneof=text json"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port" validate:"gte=0,lte=65535"`
}

// StorageConfig holds the defaults used for paths without a connection reference.
type StorageConfig struct {
	DefaultRegion        string        `yaml:"default_region" validate:"required"`
	Endpoint             string        `yaml:"endpoint"`
	UseHTTPS             bool          `yaml:"use_https"`
	VerifyTLS            bool          `yaml:"verify_tls"`
	VirtualAddressing    bool          `yaml:"virtual_addressing"`
	MaxListingPageSize   int           `yaml:"max_listing_page_size"`
	MaxCatalogPageSize   int           `yaml:"max_catalog_page_size"`
	MaxRetries           int           `yaml:"max_retries" validate:"gte=1,lte=10"`
	RequestTimeout       time.Duration `yaml:"request_timeout" validate:"gte=0"`
	EnableCargoship      bool          `yaml:"enable_cargoship"`
	CargoshipConcurrency int           `yaml:"cargoship_concurrency" validate:"gte=1,lte=64"`
}

// TransferConfig configures scratch-file staging.
type TransferConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
	ChunkSize  string `yaml:"chunk_size" validate:"required"`
}

// SizeWalkConfig configures progress checkpoints of directory size walks.
type SizeWalkConfig struct {
	ProgressBatch    int           `yaml:"progress_batch" validate:"gte=1"`
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gt=0"`
}

// ConcurrencyConfig is advertised to hosts in the capabilities document.
type ConcurrencyConfig struct {
	MaxParallelCopyMove int `yaml:"max_parallel_copy_move" validate:"gte=1"`
	MaxParallelDelete   int `yaml:"max_parallel_delete" validate:"gte=1"`
}

// ProfilesConfig locates the file-backed connection profile store.
type ProfilesConfig struct {
	Directory   string `yaml:"directory"`
	AllowPrompt bool   `yaml:"allow_prompt"`
}

// RetryConfig drives host-level retries of idempotent reads. The adapter
// itself never retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			MetricsPort: 0,
		},
		Storage: StorageConfig{
			DefaultRegion:        connection.DefaultRegion,
			UseHTTPS:             true,
			VerifyTLS:            true,
			VirtualAddressing:    true,
			MaxListingPageSize:   connection.MaxPageSize,
			MaxCatalogPageSize:   connection.MaxPageSize,
			MaxRetries:           1,
			RequestTimeout:       60 * time.Second,
			CargoshipConcurrency: 4,
		},
		Transfer: TransferConfig{
			ChunkSize: "1MB",
		},
		SizeWalk: SizeWalkConfig{
			ProgressBatch:    1000,
			ProgressInterval: 250 * time.Millisecond,
		},
		Concurrency: ConcurrencyConfig{
			MaxParallelCopyMove: 4,
			MaxParallelDelete:   8,
		},
		Profiles: ProfilesConfig{
			AllowPrompt: true,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.LoadFromBytes(data)
}

// LoadFromBytes overlays a YAML document on c. JSON documents are accepted as well.
func (c *Configuration) LoadFromBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from S3VFS_* environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("S3VFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("S3VFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv("S3VFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("S3VFS_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid S3VFS_METRICS_PORT: %w", err)
		}
		c.Global.MetricsPort = port
	}

	if val := os.Getenv("S3VFS_REGION"); val != "" {
		c.Storage.DefaultRegion = val
	}
	if val := os.Getenv("S3VFS_ENDPOINT"); val != "" {
		c.Storage.Endpoint = val
	}
	if val := os.Getenv("S3VFS_USE_HTTPS"); val != "" {
		c.Storage.UseHTTPS = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("S3VFS_VERIFY_TLS"); val != "" {
		c.Storage.VerifyTLS = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("S3VFS_VIRTUAL_ADDRESSING"); val != "" {
		c.Storage.VirtualAddressing = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("S3VFS_MAX_PAGE_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid S3VFS_MAX_PAGE_SIZE: %w", err)
		}
		c.Storage.MaxListingPageSize = n
	}
	if val := os.Getenv("S3VFS_MAX_CATALOG_PAGE_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid S3VFS_MAX_CATALOG_PAGE_SIZE: %w", err)
		}
		c.Storage.MaxCatalogPageSize = n
	}
	if val := os.Getenv("S3VFS_CARGOSHIP"); val != "" {
		c.Storage.EnableCargoship = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("S3VFS_SCRATCH_DIR"); val != "" {
		c.Transfer.ScratchDir = val
	}
	if val := os.Getenv("S3VFS_PROFILES_DIR"); val != "" {
		c.Profiles.Directory = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Normalize clamps page sizes into [1, 1000] and upper-cases the log level.
func (c *Configuration) Normalize() {
	c.Global.LogLevel = strings.ToUpper(c.Global.LogLevel)
	if c.Global.LogLevel == "WARNING" {
		c.Global.LogLevel = "WARN"
	}
	c.Storage.MaxListingPageSize = connection.ClampPageSize(c.Storage.MaxListingPageSize)
	c.Storage.MaxCatalogPageSize = connection.ClampPageSize(c.Storage.MaxCatalogPageSize)
}

// Validate validates the configuration using struct tags and custom rules.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Storage.MaxListingPageSize < 1 || c.Storage.MaxListingPageSize > connection.MaxPageSize {
		return fmt.Errorf("storage.max_listing_page_size must be within [1, %d]", connection.MaxPageSize)
	}
	if c.Storage.MaxCatalogPageSize < 1 || c.Storage.MaxCatalogPageSize > connection.MaxPageSize {
		return fmt.Errorf("storage.max_catalog_page_size must be within [1, %d]", connection.MaxPageSize)
	}
	if _, err := c.ChunkBytes(); err != nil {
		return fmt.Errorf("transfer.chunk_size: %w", err)
	}
	if c.Storage.Endpoint != "" && strings.ContainsAny(c.Storage.Endpoint, " \t") {
		return fmt.Errorf("storage.endpoint must not contain whitespace")
	}

	return nil
}

// ChunkBytes returns the transfer chunk size in bytes.
func (c *Configuration) ChunkBytes() (int, error) {
	n, err := utils.ParseBytes(c.Transfer.ChunkSize)
	if err != nil {
		return 0, err
	}
	if n < 4<<10 || n > 64<<20 {
		return 0, fmt.Errorf("chunk size %s outside [4KB, 64MB]", c.Transfer.ChunkSize)
	}
	return int(n), nil
}

// Defaults returns the connection defaults derived from the storage section.
func (c *Configuration) Defaults() connection.Defaults {
	return connection.Defaults{
		Region:             c.Storage.DefaultRegion,
		Endpoint:           c.Storage.Endpoint,
		UseHTTPS:           c.Storage.UseHTTPS,
		VerifyTLS:          c.Storage.VerifyTLS,
		VirtualAddressing:  c.Storage.VirtualAddressing,
		MaxListingPageSize: c.Storage.MaxListingPageSize,
		MaxCatalogPageSize: c.Storage.MaxCatalogPageSize,
	}
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
