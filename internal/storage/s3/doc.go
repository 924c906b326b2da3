/*
Package s3 implements the object-storage backend behind the filesystem adapter.

A Backend performs the individual S3 calls a filesystem operation needs: bucket
listing, delimiter listings with continuation tokens, object metadata lookups,
streaming reads, uploads and deletes. It keeps no per-call state. Everything a
call needs to reach the service arrives in a *connection.ResolvedContext.

# Clients and regions

Clients are built by a ClientFactory and reused through a ClientCache keyed on
everything that influences the client: region, endpoint, scheme, TLS
verification, addressing style and credentials.

Buckets may live in any region. The backend asks the service for a bucket's
location once and memoizes the answer in a RegionCache shared across
operations:

	backend := s3.NewBackend(s3.NewClientFactory(opts, logger), s3.NewRegionCache(), logger)
	region, err := backend.BucketRegion(ctx, rc, "my-bucket")

When the connection points at a custom endpoint the location lookup is skipped
and the connection's region is used for every bucket.

# CargoShip

With Options.EnableCargoShip set, uploads first go through a CargoShip
transporter. A failed accelerated upload is logged, the body is rewound, and the
object is written with a plain PutObject.

# Errors

All SDK and transport failures are translated with the translate package, so
callers only ever see *errors.VFSError values carrying one of the filesystem
error codes.
*/
package s3
