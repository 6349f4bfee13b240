package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/output"
	"github.com/fieldsync/fieldsync/internal/client/sync"
)

// NewConflictCommands creates the conflict command group
func NewConflictCommands(getCfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflict",
		Short: "Inspect and resolve sync conflicts",
		Long: `A conflict is recorded when the server's copy of an interview changed
independently of this device. Both versions are kept in full until one
side is chosen; nothing is ever merged automatically.`,
	}

	cmd.AddCommand(newConflictListCommand(getCfg))
	cmd.AddCommand(newConflictShowCommand(getCfg))
	cmd.AddCommand(newConflictResolveCommand(getCfg))

	return cmd
}

func newConflictListCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				conflicts, err := c.Store.UnresolvedConflicts(ctx)
				if err != nil {
					return fmt.Errorf("failed to list conflicts: %w", err)
				}

				out, err := output.FormatConflictList(conflicts, c.Config.Format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newConflictShowCommand(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conflict-id>",
		Short: "Show both versions of a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conflict id %q", args[0])
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				conflict, err := c.Store.GetConflict(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load conflict: %w", err)
				}

				out, err := output.FormatConflict(conflict, c.Config.Format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newConflictResolveCommand(getCfg func() *config.Config) *cobra.Command {
	var keep string

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict by choosing a side",
		Long: `Resolve a conflict by applying exactly one stored version as the
interview's new local state. Keeping the local version re-queues it for
sync; keeping the server version marks the interview synced.

Without --keep, an interactive picker is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conflict id %q", args[0])
			}

			side := sync.Side(keep)
			if keep == "" {
				side, err = pickSide()
				if err != nil {
					return err
				}
			}
			if side != sync.SideLocal && side != sync.SideServer {
				return fmt.Errorf("invalid side %q, must be 'local' or 'server'", keep)
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				if err := sync.Resolve(ctx, c.Store, id, side); err != nil {
					return fmt.Errorf("failed to resolve conflict: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess(fmt.Sprintf("✓ Conflict resolved, kept %s version", side)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&keep, "keep", "", "Which version to keep: local or server")

	return cmd
}

func pickSide() (sync.Side, error) {
	var side string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which version should win?").
				Options(
					huh.NewOption("Keep my local version (re-queues for sync)", string(sync.SideLocal)),
					huh.NewOption("Accept the server version", string(sync.SideServer)),
				).
				Value(&side),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("operation cancelled: %w", err)
	}
	return sync.Side(side), nil
}
