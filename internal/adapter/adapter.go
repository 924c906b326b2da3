package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/objectfs/s3vfs/internal/config"
	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/internal/dirbuf"
	"github.com/objectfs/s3vfs/internal/metrics"
	"github.com/objectfs/s3vfs/internal/sizewalk"
	s3backend "github.com/objectfs/s3vfs/internal/storage/s3"
	"github.com/objectfs/s3vfs/internal/storage/tables"
	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

const component = "adapter"

// Concurrency is the scheduling hint advertised in Capabilities.
type Concurrency struct {
	CopyMove int `json:"copy_move"`
	Delete   int `json:"delete"`
}

// Options configures an Adapter built with NewWithBackends.
type Options struct {
	Mode     types.Mode
	Defaults connection.Defaults
	Provider types.ConnectionProvider

	// AcquireSecrets lets the resolver fetch or prompt for secret keys.
	AcquireSecrets bool

	Transfer    transfer.Options
	SizeWalk    sizewalk.Options
	Concurrency Concurrency

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Adapter exposes object storage, or the table catalog, through filesystem
// operations. It is safe for concurrent use.
type Adapter struct {
	opts     Options
	resolver *connection.Resolver
	objects  *s3backend.Backend
	catalog  *tables.Backend
	walker   *sizewalk.Walker
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates an adapter for mode backed by real SDK clients.
func New(cfg *config.Configuration, mode types.Mode, provider types.ConnectionProvider, recorder metrics.Recorder, logger *slog.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid configuration").
			WithComponent(component)
	}
	chunk, err := cfg.ChunkBytes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid transfer chunk size").
			WithComponent(component)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backendOpts := s3backend.Options{
		MaxRetries:           cfg.Storage.MaxRetries,
		RequestTimeout:       cfg.Storage.RequestTimeout,
		EnableCargoShip:      cfg.Storage.EnableCargoship,
		CargoShipConcurrency: cfg.Storage.CargoshipConcurrency,
	}
	objects := s3backend.NewBackend(s3backend.NewClientFactory(backendOpts, logger), nil, logger)
	catalog := tables.NewBackend(tables.NewClientFactory(backendOpts, logger), nil, logger)

	return NewWithBackends(Options{
		Mode:           mode,
		Defaults:       cfg.Defaults(),
		Provider:       provider,
		AcquireSecrets: true,
		Transfer: transfer.Options{
			ScratchDir: cfg.Transfer.ScratchDir,
			ChunkSize:  chunk,
		},
		SizeWalk: sizewalk.Options{
			ProgressBatch:    cfg.SizeWalk.ProgressBatch,
			ProgressInterval: cfg.SizeWalk.ProgressInterval,
		},
		Concurrency: Concurrency{
			CopyMove: cfg.Concurrency.MaxParallelCopyMove,
			Delete:   cfg.Concurrency.MaxParallelDelete,
		},
		Metrics: recorder,
		Logger:  logger,
	}, objects, catalog), nil
}

// NewWithBackends creates an adapter over existing backends. Either backend
// may be nil when the adapter never runs in its mode.
func NewWithBackends(opts Options, objects *s3backend.Backend, catalog *tables.Backend) *Adapter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Concurrency.CopyMove <= 0 {
		opts.Concurrency.CopyMove = 1
	}
	if opts.Concurrency.Delete <= 0 {
		opts.Concurrency.Delete = 1
	}

	recorder := opts.Metrics
	a := &Adapter{
		opts:     opts,
		resolver: connection.NewResolver(opts.Mode, opts.Defaults, opts.Provider, opts.Logger),
		objects:  objects,
		catalog:  catalog,
		recorder: recorder,
		logger:   opts.Logger.With("component", component, "mode", opts.Mode.String()),
	}
	if objects != nil {
		objects.Regions().OnLookup = func(hit bool) { recorder.RecordCacheLookup("region", hit) }
		a.walker = sizewalk.New(objects, opts.SizeWalk, opts.Logger)
	}
	if catalog != nil {
		catalog.Identities().OnLookup = func(hit bool) { recorder.RecordCacheLookup("catalog_identity", hit) }
	}
	return a
}

// Mode returns the backend mode the adapter serves.
func (a *Adapter) Mode() types.Mode {
	return a.opts.Mode
}

func (a *Adapter) catalogMode() bool {
	return a.opts.Mode == types.ModeCatalog
}

func (a *Adapter) track(operation string, start time.Time, err error) {
	a.recorder.RecordOperation(operation, a.opts.Mode.String(), time.Since(start), err)
}

// resolve validates path and resolves its connection context.
func (a *Adapter) resolve(ctx context.Context, operation, path string) (*connection.ResolvedContext, string, error) {
	if path == "" {
		return nil, "", errors.NewError(errors.ErrCodeInvalidArgument, "path is required").
			WithComponent(component).
			WithOperation(operation)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", transfer.Cancelled(operation, path).WithCause(err)
	}
	rc, remainder, err := a.resolver.Resolve(ctx, path, a.opts.AcquireSecrets)
	if err != nil {
		return nil, "", err
	}
	return rc, remainder, nil
}

func notSupported(operation, path string) *errors.VFSError {
	return errors.Newf(errors.ErrCodeNotSupported, "%s is not supported here", operation).
		WithComponent(component).
		WithOperation(operation).
		WithContext("path", path)
}

// List returns the directory at path as an entry buffer.
func (a *Adapter) List(ctx context.Context, path string) (buf *dirbuf.Buffer, err error) {
	defer func(start time.Time) { a.track("List", start, err) }(time.Now())

	rc, remainder, err := a.resolve(ctx, "List", path)
	if err != nil {
		return nil, err
	}

	var entries []types.DirectoryEntry
	if a.catalogMode() {
		loc, err := tables.ParseLocation(remainder)
		if err != nil {
			return nil, err
		}
		entries, err = a.catalog.List(ctx, rc, loc)
		if err != nil {
			return nil, err
		}
	} else {
		entries, err = a.listObjects(ctx, rc, remainder)
		if err != nil {
			return nil, err
		}
	}

	a.logger.Debug("listed", "path", remainder, "entries", len(entries))
	return dirbuf.BuildFromEntries(entries), nil
}

// Stat returns the attributes of the item at path.
func (a *Adapter) Stat(ctx context.Context, path string) (attrs *types.ItemAttributes, err error) {
	defer func(start time.Time) { a.track("Stat", start, err) }(time.Now())

	rc, remainder, err := a.resolve(ctx, "Stat", path)
	if err != nil {
		return nil, err
	}
	if a.catalogMode() {
		attrs, _, err = a.statTable(ctx, rc, remainder)
		return attrs, err
	}
	attrs, _, err = a.statObject(ctx, rc, remainder)
	return attrs, err
}

// Read downloads the file at path into a scratch file and returns a reader
// positioned at its start. Closing the reader removes the scratch file.
func (a *Adapter) Read(ctx context.Context, path string, progress types.ProgressCallback) (r *transfer.Reader, err error) {
	defer func(start time.Time) { a.track("Read", start, err) }(time.Now())

	rc, remainder, err := a.resolve(ctx, "Read", path)
	if err != nil {
		return nil, err
	}
	if a.catalogMode() {
		r, err = a.readTable(ctx, rc, remainder, progress)
	} else {
		r, err = a.readObject(ctx, rc, remainder, progress)
	}
	if err != nil {
		return nil, err
	}
	a.recorder.RecordTransfer(metrics.DirectionDownload, r.Size())
	return r, nil
}

// Write returns a handle that stages content locally. Nothing reaches the
// backend until Commit; a discarded handle leaves the backend untouched.
func (a *Adapter) Write(ctx context.Context, path string, overwrite bool, progress types.ProgressCallback) (h *transfer.WriteHandle, err error) {
	defer func(start time.Time) { a.track("Write", start, err) }(time.Now())

	if a.catalogMode() {
		return nil, notSupported("Write", path)
	}
	_, remainder, err := a.resolve(ctx, "Write", path)
	if err != nil {
		return nil, err
	}
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot || loc.IsBucket() || loc.HasTrailingSeparator() {
		return nil, errors.NewError(errors.ErrCodeAccessDenied, "only files can be written").
			WithComponent(component).
			WithOperation("Write").
			WithContext("path", remainder)
	}

	commit := func(ctx context.Context, body io.ReadSeeker, size int64) (err error) {
		defer func(start time.Time) { a.track("Commit", start, err) }(time.Now())
		if err := a.commitObject(ctx, path, overwrite, body, size); err != nil {
			return err
		}
		a.recorder.RecordTransfer(metrics.DirectionUpload, size)
		return nil
	}
	return transfer.NewWriteHandle(a.opts.Transfer, remainder, commit, progress, a.opts.Logger)
}

// Delete removes a file or an empty directory.
func (a *Adapter) Delete(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { a.track("Delete", start, err) }(time.Now())

	if a.catalogMode() {
		return notSupported("Delete", path)
	}
	rc, remainder, err := a.resolve(ctx, "Delete", path)
	if err != nil {
		return err
	}
	return a.deleteObject(ctx, rc, remainder)
}

// CreateDirectory creates an empty directory at path.
func (a *Adapter) CreateDirectory(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { a.track("CreateDirectory", start, err) }(time.Now())

	if a.catalogMode() {
		return notSupported("CreateDirectory", path)
	}
	rc, remainder, err := a.resolve(ctx, "CreateDirectory", path)
	if err != nil {
		return err
	}
	return a.createDirectory(ctx, rc, remainder)
}

// ComputeSize totals the bytes, files and directories under path. A cancelled
// walk returns the partial totals with a CANCELLED error.
func (a *Adapter) ComputeSize(ctx context.Context, path string, recursive bool, progress types.ProgressCallback) (totals types.SizeTotals, err error) {
	defer func(start time.Time) { a.track("ComputeSize", start, err) }(time.Now())

	if a.catalogMode() {
		return types.SizeTotals{}, notSupported("ComputeSize", path)
	}
	rc, remainder, err := a.resolve(ctx, "ComputeSize", path)
	if err != nil {
		return types.SizeTotals{}, err
	}
	return a.computeSize(ctx, rc, remainder, recursive, progress)
}

// Copy is not supported by either backend.
func (a *Adapter) Copy(ctx context.Context, src, dst string) (err error) {
	defer func(start time.Time) { a.track("Copy", start, err) }(time.Now())
	return notSupported("Copy", src).WithContext("destination", dst)
}

// Move is not supported by either backend.
func (a *Adapter) Move(ctx context.Context, src, dst string) (err error) {
	defer func(start time.Time) { a.track("Move", start, err) }(time.Now())
	return notSupported("Move", src).WithContext("destination", dst)
}

// Rename is not supported by either backend.
func (a *Adapter) Rename(ctx context.Context, path, newName string) (err error) {
	defer func(start time.Time) { a.track("Rename", start, err) }(time.Now())
	return notSupported("Rename", path).WithContext("new_name", newName)
}

type capabilities struct {
	Mode        string      `json:"mode"`
	Operations  []string    `json:"operations"`
	Concurrency Concurrency `json:"concurrency"`
}

// Capabilities returns the JSON document describing supported operations
// and the host's concurrency hints.
func (a *Adapter) Capabilities() ([]byte, error) {
	ops := []string{"List", "Stat", "Read", "Write", "Delete", "CreateDirectory", "ComputeSize"}
	if a.catalogMode() {
		ops = []string{"List", "Stat", "Read"}
	}
	return json.Marshal(capabilities{
		Mode:        a.opts.Mode.String(),
		Operations:  ops,
		Concurrency: a.opts.Concurrency,
	})
}

type itemMetadata struct {
	General    generalMetadata    `json:"general"`
	Connection connectionMetadata `json:"connection"`
	Backend    map[string]any     `json:"backend,omitempty"`
}

type generalMetadata struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified,omitempty"`
}

type connectionMetadata struct {
	Name     string `json:"name,omitempty"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ItemMetadata returns a JSON document describing the item at path for display.
func (a *Adapter) ItemMetadata(ctx context.Context, path string) (doc []byte, err error) {
	defer func(start time.Time) { a.track("ItemMetadata", start, err) }(time.Now())

	rc, remainder, err := a.resolve(ctx, "ItemMetadata", path)
	if err != nil {
		return nil, err
	}

	var (
		attrs   *types.ItemAttributes
		backend map[string]any
	)
	if a.catalogMode() {
		var table *tables.TableInfo
		attrs, table, err = a.statTable(ctx, rc, remainder)
		if err != nil {
			return nil, err
		}
		backend = catalogBackendMetadata(remainder, table)
	} else {
		var info *types.ObjectInfo
		attrs, info, err = a.statObject(ctx, rc, remainder)
		if err != nil {
			return nil, err
		}
		backend = a.objectBackendMetadata(ctx, rc, remainder, info)
	}

	kind := "file"
	if attrs.IsDirectory {
		kind = "directory"
	}
	return json.Marshal(itemMetadata{
		General: generalMetadata{
			Path:     attrs.Path,
			Name:     attrs.Name,
			Type:     kind,
			Size:     attrs.Size,
			Modified: attrs.ModTime,
		},
		Connection: connectionMetadata{
			Name:     rc.ConnectionName,
			Region:   rc.Region,
			Endpoint: rc.Endpoint,
		},
		Backend: backend,
	})
}

func directoryAttributes(path string) *types.ItemAttributes {
	return &types.ItemAttributes{
		Path:        path,
		Name:        utils.BaseName(path),
		IsDirectory: true,
	}
}
