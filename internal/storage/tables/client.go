package tables

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"

	"github.com/objectfs/s3vfs/internal/connection"
	s3backend "github.com/objectfs/s3vfs/internal/storage/s3"
)

// ClientFactory builds a catalog client for rc.
type ClientFactory func(ctx context.Context, rc *connection.ResolvedContext) (API, error)

// NewClientFactory returns a factory that builds real SDK clients. The HTTP
// transport, retry and credential settings are shared with the object backend.
func NewClientFactory(opts s3backend.Options, logger *slog.Logger) ClientFactory {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3tables-client")

	return func(ctx context.Context, rc *connection.ResolvedContext) (API, error) {
		awsCfg, err := s3backend.LoadAWSConfig(ctx, rc, rc.Region, opts)
		if err != nil {
			return nil, err
		}
		client := s3tables.NewFromConfig(awsCfg, func(o *s3tables.Options) {
			if rc.Endpoint != "" {
				o.BaseEndpoint = aws.String(s3backend.EndpointURL(rc.Endpoint, rc.UseHTTPS))
			}
		})
		logger.Debug("created catalog client", "region", rc.Region, "endpoint", rc.Endpoint)
		return client, nil
	}
}

type clientCache struct {
	mu      sync.Mutex
	factory ClientFactory
	clients map[connection.ClientKey]API
}

func newClientCache(factory ClientFactory) *clientCache {
	return &clientCache{factory: factory, clients: make(map[connection.ClientKey]API)}
}

func (c *clientCache) get(ctx context.Context, rc *connection.ResolvedContext) (API, error) {
	key := rc.ClientKey("")

	c.mu.Lock()
	client, ok := c.clients[key]
	c.mu.Unlock()
	if ok {
		return client, nil
	}

	client, err := c.factory(ctx, rc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.clients[key]; ok {
		return existing, nil
	}
	c.clients[key] = client
	return client, nil
}
