package connection

import (
	"log/slog"
)

const (
	// DefaultRegion is used when neither a profile nor the configuration names one.
	DefaultRegion = "us-east-1"

	// MaxPageSize is the largest page any listing call may request.
	MaxPageSize = 1000
)

// Defaults are the plugin-wide settings used when a path carries no connection reference.
type Defaults struct {
	Region             string
	Endpoint           string
	UseHTTPS           bool
	VerifyTLS          bool
	VirtualAddressing  bool
	MaxListingPageSize int
	MaxCatalogPageSize int
}

// ResolvedContext is everything a backend call needs to know about where and as whom to connect.
// It is built fresh for every operation.
type ResolvedContext struct {
	ConnectionName string

	// Region is never empty.
	Region string
	// ExplicitRegion is set only when the connection profile picked a region.
	ExplicitRegion string

	Endpoint          string
	UseHTTPS          bool
	VerifyTLS         bool
	VirtualAddressing bool

	MaxListingPageSize int
	MaxCatalogPageSize int

	AccessKeyID     string
	SecretAccessKey string
}

// HasCustomEndpoint reports whether requests go to a non-default endpoint.
func (c *ResolvedContext) HasCustomEndpoint() bool {
	return c.Endpoint != ""
}

// HasStaticCredentials reports whether both halves of an access key are present.
func (c *ResolvedContext) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// LogValue keeps the secret out of log records.
func (c *ResolvedContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("connection", c.ConnectionName),
		slog.String("region", c.Region),
		slog.String("endpoint", c.Endpoint),
		slog.Bool("https", c.UseHTTPS),
		slog.Bool("virtual_addressing", c.VirtualAddressing),
		slog.Bool("static_credentials", c.HasStaticCredentials()),
	)
}

// ClientKey identifies every setting that shapes a service client.
type ClientKey struct {
	Region            string
	Endpoint          string
	UseHTTPS          bool
	VerifyTLS         bool
	VirtualAddressing bool
	AccessKeyID       string
	SecretAccessKey   string
}

// ClientKey returns the key for a client pinned to region; empty means c.Region.
func (c *ResolvedContext) ClientKey(region string) ClientKey {
	if region == "" {
		region = c.Region
	}
	return ClientKey{
		Region:            region,
		Endpoint:          c.Endpoint,
		UseHTTPS:          c.UseHTTPS,
		VerifyTLS:         c.VerifyTLS,
		VirtualAddressing: c.VirtualAddressing,
		AccessKeyID:       c.AccessKeyID,
		SecretAccessKey:   c.SecretAccessKey,
	}
}

// ClampPageSize limits n to [1, MaxPageSize]. Zero means unset and yields MaxPageSize.
func ClampPageSize(n int) int {
	switch {
	case n == 0:
		return MaxPageSize
	case n < 1:
		return 1
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

func fromDefaults(d Defaults) *ResolvedContext {
	region := d.Region
	if region == "" {
		region = DefaultRegion
	}
	return &ResolvedContext{
		Region:             region,
		Endpoint:           d.Endpoint,
		UseHTTPS:           d.UseHTTPS,
		VerifyTLS:          d.VerifyTLS,
		VirtualAddressing:  d.VirtualAddressing,
		MaxListingPageSize: ClampPageSize(d.MaxListingPageSize),
		MaxCatalogPageSize: ClampPageSize(d.MaxCatalogPageSize),
	}
}
