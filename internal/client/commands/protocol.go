package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/assets"
	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/output"
	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// NewProtocolCommands creates the protocol command group
func NewProtocolCommands(getCfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Manage cached survey protocols",
		Long:  "Cache survey protocols for offline use and download their binary assets",
	}

	cmd.AddCommand(newProtocolCacheCommand(getCfg))
	cmd.AddCommand(newProtocolListCommand(getCfg))
	cmd.AddCommand(newProtocolDownloadCommand(getCfg))
	cmd.AddCommand(newProtocolDeleteCommand(getCfg))

	return cmd
}

// protocolDocument is the subset of a protocol file needed for caching.
type protocolDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newProtocolCacheCommand(getCfg func() *config.Config) *cobra.Command {
	var withAssets bool

	cmd := &cobra.Command{
		Use:   "cache <protocol-file>",
		Short: "Cache a protocol from a JSON file",
		Long: `Cache a protocol definition for offline use. The file must be a JSON
protocol document carrying at least an "id" and a "name". Other station
processes on this device are notified once the protocol is available.

Use --with-assets to download the protocol's binary assets immediately
after caching.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read protocol file: %w", err)
			}

			var doc protocolDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("protocol file is not valid JSON: %w", err)
			}
			if doc.ID == "" {
				return fmt.Errorf("protocol file is missing an id")
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				protocol := &storage.Protocol{
					ID:   doc.ID,
					Name: doc.Name,
					Data: data,
				}
				if err := c.Orchestrator.CacheProtocol(ctx, protocol); err != nil {
					return fmt.Errorf("failed to cache protocol: %w", err)
				}

				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess(fmt.Sprintf("✓ Cached protocol %q (%s)", doc.Name, doc.ID)))

				if withAssets {
					return downloadAssets(ctx, cmd, c, protocol)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withAssets, "with-assets", false, "Download the protocol's assets after caching")

	return cmd
}

func newProtocolListCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached protocols",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				protocols, err := c.Orchestrator.Protocols(ctx)
				if err != nil {
					return fmt.Errorf("failed to list protocols: %w", err)
				}

				counts := make(map[string]int, len(protocols))
				for _, p := range protocols {
					count, err := c.Store.CountAssets(ctx, p.ID)
					if err != nil {
						return err
					}
					counts[p.ID] = count
				}

				out, err := output.FormatProtocolList(protocols, counts, c.Config.Format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newProtocolDownloadCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "download <protocol-id>",
		Short: "Download a cached protocol's binary assets",
		Long: `Download the binary assets of an already cached protocol. Assets that
are already present locally are skipped, so re-running after an
interruption resumes where the previous run stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				protocol, err := c.Store.GetProtocol(ctx, args[0])
				if err != nil {
					return fmt.Errorf("protocol not cached: %w", err)
				}
				return downloadAssets(ctx, cmd, c, protocol)
			})
		},
	}
}

func newProtocolDeleteCommand(getCfg func() *config.Config) *cobra.Command {
	var noConfirm bool

	cmd := &cobra.Command{
		Use:   "delete <protocol-id>",
		Short: "Remove a cached protocol and its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirmDeletion(fmt.Sprintf("protocol %q", args[0]), noConfirm)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				if err := c.Store.DeleteProtocol(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete protocol: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess("✓ Protocol deleted"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noConfirm, "yes", false, "Skip the confirmation prompt")

	return cmd
}

// downloadAssets runs the download manager with live progress on stdout.
// Storage headroom is checked up front so a doomed download fails before
// the first fetch.
func downloadAssets(ctx context.Context, cmd *cobra.Command, c *Client, protocol *storage.Protocol) error {
	out := cmd.OutOrStdout()

	report, err := assets.CheckStorageQuota(assets.DirStat(c.Config.DataDir))
	if err == nil {
		if report.PercentUsed >= assets.BlockThresholdPercent {
			return fmt.Errorf("storage is %.1f%% full, refusing to download new assets", report.PercentUsed)
		}
		if report.PercentUsed >= assets.WarnThresholdPercent {
			fmt.Fprintf(out, "⚠ Storage is %.1f%% full\n", report.PercentUsed)
		}
	}

	manager := assets.NewManager(c.Store, &http.Client{Timeout: 5 * time.Minute})
	progress, err := manager.DownloadProtocolAssets(ctx, protocol, func(p assets.Progress) {
		fmt.Fprintf(out, "  %s %d/%d assets (%d bytes)\n",
			p.Status, p.DownloadedAssets, p.TotalAssets, p.DownloadedBytes)
	})
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	switch progress.Status {
	case assets.StatusCompleted:
		fmt.Fprint(out, output.FormatSuccess(fmt.Sprintf("✓ Downloaded %d assets", progress.DownloadedAssets)))
	case assets.StatusPaused:
		fmt.Fprintln(out, "Download paused, re-run to resume")
	case assets.StatusError:
		return fmt.Errorf("download failed: %s", progress.Error)
	}

	return nil
}
