package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/spf13/cobra"
)

// SyncResult is the JSON shape of a sync run.
type SyncResult struct {
	UserID  string `json:"user_id"`
	Granted int    `json:"granted"`
}

func NewFulfillCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:           "fulfill <order-id>",
		Short:         "Grant the digital items of one shipped or delivered order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			lib, closeFn, err := open(ctx)
			if err != nil {
				_ = out.Error(err, nil)
				return WrapExitError(ExitCommandError, "connect", err)
			}
			defer closeFn()

			res, err := lib.TriggerFulfillment(ctx, args[0])
			if err != nil {
				_ = out.Error(err, res)
				return WrapExitError(ExitFailure, "fulfill "+args[0], err)
			}
			return out.Success(res, describeResult(res))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func NewSyncCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:           "sync <user-id>...",
		Short:         "Reconcile libraries with past orders",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			lib, closeFn, err := open(ctx)
			if err != nil {
				_ = out.Error(err, nil)
				return WrapExitError(ExitCommandError, "connect", err)
			}
			defer closeFn()

			results := make([]SyncResult, 0, len(args))
			var errs []error
			for _, userID := range args {
				n, err := lib.SyncEntitlements(ctx, userID)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", userID, err))
					continue
				}
				results = append(results, SyncResult{UserID: userID, Granted: n})
			}
			if err := errors.Join(errs...); err != nil {
				_ = out.Error(err, results)
				code := ExitFailure
				if errors.Is(err, library.ErrNoIdentity) {
					code = ExitCommandError
				}
				return WrapExitError(code, "sync", err)
			}
			return out.Success(results, describeSync(results))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}

func describeResult(r library.Result) string {
	if r.Skipped {
		return fmt.Sprintf("order %s skipped: %s", r.OrderID, r.Reason)
	}
	if len(r.Granted) == 0 {
		return fmt.Sprintf("order %s: library of %s already up to date", r.OrderID, r.UserID)
	}
	return fmt.Sprintf("order %s: granted %s to %s", r.OrderID, strings.Join(r.Granted, ", "), r.UserID)
}

func describeSync(rs []SyncResult) string {
	lines := make([]string, 0, len(rs))
	for _, r := range rs {
		lines = append(lines, fmt.Sprintf("%s: %d new", r.UserID, r.Granted))
	}
	return strings.Join(lines, "\n")
}
