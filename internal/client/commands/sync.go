package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/storage"
	"github.com/fieldsync/fieldsync/internal/client/sync"
)

// NewSyncCommand creates the sync command
func NewSyncCommand(getCfg func() *config.Config) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued interview changes to the server",
		Long: `Replay the pending sync queue against the server. Each interview's
operations apply in the order they were made; interviews created
offline receive their permanent server id during the run.

Interviews whose remote state diverged are flagged as conflicts and
left untouched locally. Use 'fieldsync conflict list' and
'fieldsync conflict resolve' to pick a side.

Use --status to inspect the queue without contacting the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				if statusOnly {
					return printSyncStatus(cmd, ctx, c)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Starting synchronization...")
				fmt.Fprintln(out)

				stationID, err := sync.EnsureStationID(ctx, c.Store)
				if err != nil {
					return fmt.Errorf("failed to determine station id: %w", err)
				}

				remote := sync.NewHTTPRemote(cfg.RemoteURL, stationID, nil)
				engine := sync.NewEngine(c.Store, remote, c.Coordinator)

				result, err := engine.Run(ctx)
				if err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						return fmt.Errorf("sync operation timed out")
					}
					return fmt.Errorf("sync failed: %w", err)
				}

				fmt.Fprintln(out, "Sync Results:")
				fmt.Fprintln(out, "─────────────────────────────────────")
				fmt.Fprintf(out, "  Duration:          %.2fs\n", result.Duration.Seconds())
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  Interviews:        %d\n", result.Interviews)
				fmt.Fprintf(out, "  Operations Sent:   %d\n", result.Applied)
				fmt.Fprintf(out, "  Synced:            %d\n", result.Synced)
				fmt.Fprintf(out, "  Conflicts:         %d\n", result.Conflicts)
				fmt.Fprintf(out, "  Failed:            %d\n", result.Failed)
				fmt.Fprintln(out)

				switch {
				case result.Conflicts > 0:
					fmt.Fprintln(out, "⚠ Conflicts detected, run 'fieldsync conflict list'")
				case result.Failed > 0:
					fmt.Fprintln(out, "⚠ Some interviews failed to sync, their changes remain queued")
				default:
					fmt.Fprintln(out, "✓ Sync completed successfully")
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "Show sync status without performing sync")

	return cmd
}

// printSyncStatus displays the current sync state without contacting
// the server.
func printSyncStatus(cmd *cobra.Command, ctx context.Context, c *Client) error {
	out := cmd.OutOrStdout()

	pending, err := c.Store.PendingQueueInterviews(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect sync queue: %w", err)
	}

	conflicts, err := c.Store.UnresolvedConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	stationID, err := sync.EnsureStationID(ctx, c.Store)
	if err != nil {
		return fmt.Errorf("failed to determine station id: %w", err)
	}

	fmt.Fprintln(out, "Sync Status:")
	fmt.Fprintln(out, "─────────────────────────────────────")
	fmt.Fprintf(out, "  Station ID:        %s\n", stationID)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Pending Interviews: %d\n", len(pending))
	fmt.Fprintf(out, "  Conflicts:          %d\n", len(conflicts))
	fmt.Fprintln(out)

	lastSync, err := c.Store.GetSetting(ctx, sync.SettingLastSyncAt)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(out, "  Last Sync:         never\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "  Last Sync:         %s\n", lastSync)
		if t, parseErr := time.Parse(time.RFC3339, lastSync); parseErr == nil {
			fmt.Fprintf(out, "  Time Since Sync:   %s\n", formatDuration(time.Since(t)))
		}
	}

	fmt.Fprintln(out)

	switch {
	case len(conflicts) > 0:
		fmt.Fprintf(out, "⚠ %d conflict(s) awaiting resolution\n", len(conflicts))
	case len(pending) > 0:
		fmt.Fprintf(out, "⚠ %d interview(s) have queued changes\n", len(pending))
	default:
		fmt.Fprintln(out, "✓ All changes synced")
	}

	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	}

	if d < time.Hour {
		return fmt.Sprintf("%.0f minutes", d.Minutes())
	}

	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}

	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
