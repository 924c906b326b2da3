/*
Package metrics provides Prometheus metrics for s3vfs operations.

# Overview

A Collector implements Recorder, the interface the adapter reports to after
every operation. It keeps Prometheus series for monitoring systems and a small
per-operation summary for debugging:

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼─────────┐
	│  Prometheus  │         │  HTTP Endpoints   │
	│   Registry   │         │  /metrics         │
	│              │         │  /health          │
	│ - Counters   │         │  /debug/operations│
	│ - Histograms │         └───────────────────┘
	└──────────────┘

# Series

	s3vfs_operations_total{operation,mode,result}
	s3vfs_operation_duration_seconds{operation}
	s3vfs_transfer_bytes_total{direction}
	s3vfs_errors_total{code}
	s3vfs_cache_lookups_total{cache,result}

Error codes are the filesystem codes from pkg/errors, so the errors series has
a small fixed label set.

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9102,
		Namespace: "s3vfs",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

With Port 0 no listener is started; Handler can be mounted on an existing mux
instead. Use Nop when metrics are not wanted at all.
*/
package metrics
