/*
Package types holds the domain types and collaborator interfaces shared across s3vfs.

Every adapter operation speaks in these types: a Mode picks the backend family,
DirectoryEntry and ItemAttributes describe what a listing or stat returns, and
SizeTotals carries the result of a directory size walk.

Two interfaces are implemented outside the core:

ConnectionProvider:
The connection-profile store. Paths of the form `/@conn:<name>/...` are resolved
by fetching the profile JSON and, when the profile names an access key, its secret.

ProgressCallback:
Receives progress during transfers and size walks and is polled for cooperative
cancellation. Callbacks may block; no internal lock is held while one runs.
*/
package types
