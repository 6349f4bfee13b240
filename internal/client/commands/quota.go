package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/assets"
	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/output"
)

// NewQuotaCommand creates the quota command
func NewQuotaCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Report storage usage of the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			report, err := assets.CheckStorageQuota(assets.DirStat(cfg.DataDir))
			if err != nil {
				return fmt.Errorf("failed to check storage quota: %w", err)
			}

			view := &output.QuotaView{
				UsedBytes:      report.Used,
				TotalBytes:     report.Total,
				AvailableBytes: report.Available,
				PercentUsed:    report.PercentUsed,
			}
			switch {
			case report.PercentUsed >= assets.BlockThresholdPercent:
				view.Warning = fmt.Sprintf("⚠ Storage is %.1f%% full, new downloads are blocked", report.PercentUsed)
			case report.PercentUsed >= assets.WarnThresholdPercent:
				view.Warning = fmt.Sprintf("⚠ Storage is %.1f%% full", report.PercentUsed)
			}

			formatter, err := output.NewFormatter(cfg.Format)
			if err != nil {
				return err
			}
			out, err := formatter.Format(view)
			if err != nil {
				return fmt.Errorf("failed to format quota report: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// NewErrorsCommand creates the errors command for support tooling
func NewErrorsCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List recent storage errors recorded on this device",
		Long: `Show the on-device error log, newest first. The log is capped, so only
the most recent failures are retained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				entries, err := c.Store.ListErrorLogs(ctx)
				if err != nil {
					return fmt.Errorf("failed to list error logs: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No errors recorded")
					return nil
				}

				for _, e := range entries {
					fmt.Fprintf(out, "%s  %-24s %s\n",
						e.Timestamp.Format("2006-01-02 15:04:05"),
						e.Operation,
						e.Error,
					)
				}
				return nil
			})
		},
	}
}
