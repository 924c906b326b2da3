package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/objectfs/s3vfs/internal/dirbuf"
	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

func newListCommand(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			var buf *dirbuf.Buffer
			err := a.retry(cmd.Context(), func(ctx context.Context) (err error) {
				buf, err = a.adapter.List(ctx, path)
				return err
			})
			if err != nil {
				return err
			}
			entries, err := buf.Entries()
			if err != nil {
				return err
			}
			if !long {
				for _, e := range entries {
					name := e.Name
					if e.IsDirectory {
						name += "/"
					}
					fmt.Fprintln(a.stdout, name)
				}
				return nil
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				kind, size := "-", utils.FormatBytes(int64(e.Size))
				if e.IsDirectory {
					kind, size = "d", "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, size, formatTime(e.LastWriteTime), e.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show type, size and modification time")
	return cmd
}

func newStatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the attributes of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var attrs *types.ItemAttributes
			err := a.retry(cmd.Context(), func(ctx context.Context) (err error) {
				attrs, err = a.adapter.Stat(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, attrs)
		},
	}
}

func newCatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r *transfer.Reader
			err := a.retry(cmd.Context(), func(ctx context.Context) (err error) {
				r, err = a.adapter.Read(ctx, args[0], nil)
				return err
			})
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(a.stdout, r)
			return err
		},
	}
}

func newPutCommand(a *app) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "put <local-file|-> <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			h, err := a.adapter.Write(cmd.Context(), args[1], overwrite, a.progress("uploaded"))
			if err != nil {
				return err
			}
			if _, err := h.ReadFrom(src); err != nil {
				h.Discard()
				return err
			}
			return h.Commit(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "replace an existing file")
	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.adapter.Delete(cmd.Context(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newMkdirCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.adapter.CreateDirectory(cmd.Context(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newDiskUsageCommand(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "du <path>",
		Short: "Total the size of everything under a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var progress types.ProgressCallback
			if !quiet {
				progress = types.ProgressFuncs{OnProgress: func(c types.ProgressCounts, current string) {
					fmt.Fprintf(a.stderr, "\r%d files, %s  %s", c.Files, utils.FormatBytes(int64(c.Bytes)), current)
				}}
			}
			var totals types.SizeTotals
			err := a.retry(cmd.Context(), func(ctx context.Context) (err error) {
				totals, err = a.adapter.ComputeSize(ctx, args[0], true, progress)
				return err
			})
			if !quiet {
				fmt.Fprintln(a.stderr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s\t%d files\t%d directories\t%s\n",
				utils.FormatBytes(int64(totals.TotalBytes)), totals.FileCount, totals.DirectoryCount, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

func newCapabilitiesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print the capabilities document",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			doc, err := a.adapter.Capabilities()
			if err != nil {
				return err
			}
			return writeIndented(a.stdout, doc)
		},
	}
}

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Print the metadata document of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc []byte
			err := a.retry(cmd.Context(), func(ctx context.Context) (err error) {
				doc, err = a.adapter.ItemMetadata(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return writeIndented(a.stdout, doc)
		},
	}
}

// progress reports transfer progress on stderr when it is attached to a terminal.
func (a *app) progress(verb string) types.ProgressCallback {
	if a.stderr != os.Stderr || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return types.ProgressFuncs{OnProgress: func(c types.ProgressCounts, current string) {
		if c.TotalBytes > 0 {
			fmt.Fprintf(a.stderr, "\r%s %s of %s", verb, utils.FormatBytes(int64(c.Bytes)), utils.FormatBytes(int64(c.TotalBytes)))
			if c.Bytes >= c.TotalBytes {
				fmt.Fprintln(a.stderr)
			}
		}
	}}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeIndented(w io.Writer, doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	return writeJSON(w, v)
}
