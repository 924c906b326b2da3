package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/s3vfs/pkg/errors"
)

// Recorder receives operation outcomes from the adapter.
type Recorder interface {
	RecordOperation(operation, mode string, duration time.Duration, err error)
	RecordTransfer(direction string, bytes int64)
	RecordCacheLookup(cache string, hit bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOperation(string, string, time.Duration, error) {}
func (Nop) RecordTransfer(string, int64)                         {}
func (Nop) RecordCacheLookup(string, bool)                       {}

// Transfer directions.
const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)

// Collector implements Recorder with Prometheus metrics and an in-process summary.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	errorCounter      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec

	operations   map[string]*OperationMetrics
	started      time.Time
	backendStats func() any

	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastOperation time.Time     `json:"last_operation"`
	LastError     string        `json:"last_error,omitempty"`
}

// DefaultConfig returns an enabled config without an HTTP listener.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "s3vfs",
	}
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "s3vfs"
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := &Collector{
		config:     config,
		logger:     logger.With("component", "metrics"),
		operations: make(map[string]*OperationMetrics),
		started:    time.Now(),
	}
	if !config.Enabled {
		return collector, nil
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return collector, nil
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics and debug endpoints.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// Start serves Handler on the configured port until ctx is done or Stop is
// called. Port 0 disables the listener.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled || c.config.Port == 0 {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port %d: %w", c.config.Port, err)
	}

	c.mu.Lock()
	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	c.logger.Info("metrics endpoint listening", "addr", listener.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the listener address once Start has run.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics collection server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.RLock()
	server := c.server
	c.mu.RUnlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one adapter operation.
func (c *Collector) RecordOperation(operation, mode string, duration time.Duration, err error) {
	c.mu.Lock()
	metrics, ok := c.operations[operation]
	if !ok {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.LastOperation = time.Now()
	if err != nil {
		metrics.Errors++
		metrics.LastError = err.Error()
	}
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		c.errorCounter.With(prometheus.Labels{"code": string(errors.CodeOf(err))}).Inc()
	}
	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"mode":      mode,
		"result":    result,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())
}

// RecordTransfer adds bytes moved in direction.
func (c *Collector) RecordTransfer(direction string, bytes int64) {
	if !c.config.Enabled || bytes <= 0 {
		return
	}
	c.transferBytes.With(prometheus.Labels{"direction": direction}).Add(float64(bytes))
}

// RecordCacheLookup records a region or identity cache hit or miss.
func (c *Collector) RecordCacheLookup(cache string, hit bool) {
	if !c.config.Enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.With(prometheus.Labels{"cache": cache, "result": result}).Inc()
}

// GetMetrics returns a copy of the per-operation summary.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for name, m := range c.operations {
		out[name] = *m
	}
	return out
}

// SetBackendStats registers a snapshot function whose result is served under
// "backend" by the debug endpoint.
func (c *Collector) SetBackendStats(fn func() any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backendStats = fn
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "operations_total",
			Help:      "Total number of filesystem operations",
		},
		[]string{"operation", "mode", "result"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	c.transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved between object storage and scratch files",
		},
		[]string{"direction"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "errors_total",
			Help:      "Total number of failed operations by error code",
		},
		[]string{"code"},
	)

	c.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "cache_lookups_total",
			Help:      "Region and catalog identity cache lookups",
		},
		[]string{"cache", "result"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.transferBytes,
		c.errorCounter,
		c.cacheLookups,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"s3vfs-metrics"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	started, backendStats := c.started, c.backendStats
	c.mu.RUnlock()
	operations := c.GetMetrics()

	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)

	type row struct {
		Name string `json:"name"`
		OperationMetrics
	}
	rows := make([]row, 0, len(names))
	for _, name := range names {
		rows = append(rows, row{Name: name, OperationMetrics: operations[name]})
	}

	payload := map[string]any{
		"uptime":     time.Since(started).String(),
		"started":    started,
		"operations": rows,
	}
	if backendStats != nil {
		payload["backend"] = backendStats()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
