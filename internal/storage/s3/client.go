package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objectfs/s3vfs/internal/connection"
)

// ClientFactory builds a client for rc pinned to region. The Uploader may be nil.
type ClientFactory func(ctx context.Context, rc *connection.ResolvedContext, region string) (API, Uploader, error)

// NewClientFactory returns a factory that builds real SDK clients.
func NewClientFactory(opts Options, logger *slog.Logger) ClientFactory {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3-client")

	return func(ctx context.Context, rc *connection.ResolvedContext, region string) (API, Uploader, error) {
		awsCfg, err := LoadAWSConfig(ctx, rc, region, opts)
		if err != nil {
			return nil, nil, err
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if rc.Endpoint != "" {
				o.BaseEndpoint = aws.String(EndpointURL(rc.Endpoint, rc.UseHTTPS))
			} else if !rc.UseHTTPS {
				o.EndpointOptions.DisableHTTPS = true
			}
			o.UsePathStyle = !rc.VirtualAddressing
		})

		var uploader Uploader
		if opts.EnableCargoShip {
			uploader = newCargoUploader(client, opts, logger)
			logger.Debug("CargoShip S3 optimization enabled",
				"region", region,
				"concurrency", opts.CargoShipConcurrency)
		}

		return client, uploader, nil
	}
}

// LoadAWSConfig loads the SDK configuration for rc. Static credentials from the
// connection profile take precedence over the default credential chain.
func LoadAWSConfig(ctx context.Context, rc *connection.ResolvedContext, region string, opts Options) (aws.Config, error) {
	if region == "" {
		region = rc.Region
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 1
	}

	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if !rc.VerifyTLS {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in per connection
		}
	})
	if opts.RequestTimeout > 0 {
		httpClient = httpClient.WithTimeout(opts.RequestTimeout)
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(retries),
		config.WithHTTPClient(httpClient),
	}
	if rc.HasStaticCredentials() {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(rc.AccessKeyID, rc.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// EndpointURL adds a scheme to endpoint unless it already has one.
func EndpointURL(endpoint string, useHTTPS bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useHTTPS {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// cargoUploader routes uploads through per-bucket CargoShip transporters.
type cargoUploader struct {
	client *s3.Client
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	transporters map[string]*cargoships3.Transporter
}

func newCargoUploader(client *s3.Client, opts Options, logger *slog.Logger) *cargoUploader {
	return &cargoUploader{
		client:       client,
		opts:         opts,
		logger:       logger,
		transporters: make(map[string]*cargoships3.Transporter),
	}
}

func (u *cargoUploader) transporter(bucket string) *cargoships3.Transporter {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t, ok := u.transporters[bucket]; ok {
		return t
	}
	t := cargoships3.NewTransporter(u.client, awsconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       awsconfig.StorageClassStandard,
		MultipartThreshold: 32 * 1024 * 1024,
		MultipartChunkSize: 16 * 1024 * 1024,
		Concurrency:        u.opts.CargoShipConcurrency,
	})
	u.transporters[bucket] = t
	return t
}

func (u *cargoUploader) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	result, err := u.transporter(bucket).Upload(ctx, cargoships3.Archive{
		Key:          key,
		Reader:       body,
		Size:         size,
		StorageClass: awsconfig.StorageClassStandard,
		Metadata: map[string]string{
			"s3vfs-upload": "true",
			"content-type": contentType,
		},
	})
	if err != nil {
		return err
	}
	u.logger.Debug("CargoShip optimized upload completed",
		"bucket", bucket,
		"key", key,
		"size", size,
		"throughput", result.Throughput,
		"duration", result.Duration)
	return nil
}
