package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// Library is the subset of the library service the CLI drives.
type Library interface {
	TriggerFulfillment(ctx context.Context, orderID string) (library.Result, error)
	SyncEntitlements(ctx context.Context, userID string) (int, error)
}

// Opener connects to the backing stores. The returned func releases them.
type Opener func(ctx context.Context) (Library, func(), error)

// NewRootCommand creates the libraryctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "libraryctl",
		Short: "Operate the digital library",
		Long:  "Re-run order fulfillment and library reconciliation against the live stores.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewFulfillCommand(opts, open))
	cmd.AddCommand(NewSyncCommand(opts, open))
	return cmd
}
