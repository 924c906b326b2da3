package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/pkg/types"
)

func newProfileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage connection profiles used by @conn: paths",
	}
	cmd.AddCommand(newProfileListCommand(a), newProfileAddCommand(a), newProfileSecretCommand(a))
	return cmd
}

func newProfileListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			names, err := a.store.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
}

func newProfileAddCommand(a *app) *cobra.Command {
	var (
		region   string
		endpoint string
		accessID string
		insecure bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or replace a profile for the current mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := types.ParseMode(a.flags.mode)
			if err != nil {
				return err
			}
			profile := connection.Profile{
				PluginID: mode.PluginID(),
				Host:     region,
				UserName: accessID,
			}
			if endpoint != "" || insecure {
				profile.Extra = &connection.ProfileExtra{}
				if endpoint != "" {
					profile.Extra.Endpoint = &endpoint
				}
				if insecure {
					off := false
					profile.Extra.UseHTTPS = &off
				}
			}
			doc, err := profile.Marshal()
			if err != nil {
				return err
			}
			return a.store.SaveProfile(args[0], string(doc))
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region (the profile host)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "custom S3-compatible endpoint")
	cmd.Flags().StringVar(&accessID, "access-key-id", "", "access key id; leave empty for the default credential chain")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "use plain HTTP")
	return cmd
}

func newProfileSecretCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <name>",
		Short: "Store the secret access key of a profile, read from stdin or a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := a.store.PromptForSecret(cmd.Context(), args[0], types.SecretKindPassword)
			if err != nil {
				data, readErr := io.ReadAll(os.Stdin)
				if readErr != nil {
					return readErr
				}
				secret = strings.TrimSpace(string(data))
				if secret == "" {
					return err
				}
			}
			return a.store.SetSecret(args[0], types.SecretKindPassword, secret)
		},
	}
}
