/*
Package config provides configuration management for s3vfs.

Sources are applied in increasing precedence: compiled-in defaults (NewDefault),
a YAML or JSON file (LoadFromFile, LoadFromBytes), then S3VFS_* environment
variables (LoadFromEnv). Normalize clamps listing page sizes into [1, 1000]
before Validate checks struct tags with go-playground/validator and the rules
tags cannot express.

Example file:

	global:
	  log_level: DEBUG
	  log_format: json
	storage:
	  default_region: eu-west-1
	  endpoint: minio.internal:9000
	  use_https: false
	  virtual_addressing: false
	  max_listing_page_size: 500
	transfer:
	  chunk_size: 4MB
	size_walk:
	  progress_batch: 1000
	  progress_interval: 250ms

Defaults converts the storage section into the connection.Defaults consumed by
the context resolver.
*/
package config
