package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3vfs/internal/fuse"
	"github.com/objectfs/s3vfs/pkg/types"
)

func newMountCommand(a *app) *cobra.Command {
	var (
		readOnly   bool
		allowOther bool
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "mount <path> <mount-point>",
		Short: "Mount a path as a local filesystem",
		Long: `Mount serves <path> through FUSE until interrupted.

Catalog mode mounts are always read-only. Files written through the mount are
uploaded when they are closed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filesystem := fuse.NewFileSystem(a.adapter, &fuse.Config{
				Root:     args[0],
				ReadOnly: readOnly || a.adapter.Mode() == types.ModeCatalog,
				UID:      uint32(os.Getuid()),
				GID:      uint32(os.Getgid()),
			}, a.logger)

			manager := fuse.NewMountManager(filesystem, &fuse.MountConfig{
				MountPoint: args[1],
				AllowOther: allowOther,
				Debug:      debug,
			}, a.logger)
			if err := manager.Mount(ctx); err != nil {
				return err
			}
			manager.Wait()

			stats := manager.GetStats()
			backend := a.adapter.Stats()
			attrs := []any{
				"reads", stats.Reads,
				"writes", stats.Writes,
				"bytes_read", stats.BytesRead,
				"bytes_written", stats.BytesWritten,
				"errors", stats.Errors,
				"buffer_gets", backend.Buffers.Gets,
			}
			if backend.Objects != nil {
				attrs = append(attrs,
					"backend_requests", backend.Objects.Requests,
					"backend_errors", backend.Objects.Errors,
					"clients_created", backend.Clients.Created)
			}
			a.logger.Info("mount finished", attrs...)
			return nil
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "mount read-only")
	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "let other users access the mount")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every FUSE request")
	return cmd
}
