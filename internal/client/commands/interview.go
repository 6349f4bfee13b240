package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/interview"
	"github.com/fieldsync/fieldsync/internal/client/output"
	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// NewInterviewCommands creates the interview command group
func NewInterviewCommands(getCfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Work with interviews offline",
		Long: `Create, inspect, update and delete interviews. All changes are recorded
locally and pushed to the server on the next sync.`,
	}

	cmd.AddCommand(newInterviewCreateCommand(getCfg))
	cmd.AddCommand(newInterviewListCommand(getCfg))
	cmd.AddCommand(newInterviewShowCommand(getCfg))
	cmd.AddCommand(newInterviewUpdateCommand(getCfg))
	cmd.AddCommand(newInterviewDeleteCommand(getCfg))

	return cmd
}

// readDataArg interprets a --data value: inline JSON, or @file to read
// from disk.
func readDataArg(arg string) (json.RawMessage, error) {
	if arg == "" {
		return json.RawMessage(`{}`), nil
	}

	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		raw, err = os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("data is not valid JSON")
	}
	return raw, nil
}

func newInterviewCreateCommand(getCfg func() *config.Config) *cobra.Command {
	var (
		protocolID string
		dataArg    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new interview against a cached protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDataArg(dataArg)
			if err != nil {
				return err
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				iv, err := c.Orchestrator.Create(ctx, protocolID, data)
				if errors.Is(err, interview.ErrProtocolNotCached) {
					return fmt.Errorf("protocol %q is not cached; run 'fieldsync protocol cache' first", protocolID)
				}
				if err != nil {
					return fmt.Errorf("failed to create interview: %w", err)
				}

				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess(fmt.Sprintf("✓ Created interview %s", iv.ID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&protocolID, "protocol", "", "ID of the cached protocol to interview against")
	cmd.Flags().StringVar(&dataArg, "data", "", "Initial session state as JSON, or @file")
	cmd.MarkFlagRequired("protocol")

	return cmd
}

func newInterviewListCommand(getCfg func() *config.Config) *cobra.Command {
	var (
		statusFilter   string
		protocolFilter string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local interviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := storage.InterviewFilters{}
			if statusFilter != "" {
				status := storage.SyncStatus(statusFilter)
				switch status {
				case storage.SyncStatusSynced, storage.SyncStatusPending, storage.SyncStatusConflict:
					filters.SyncStatus = &status
				default:
					return fmt.Errorf("invalid status %q, must be one of: synced, pending, conflict", statusFilter)
				}
			}
			if protocolFilter != "" {
				filters.ProtocolID = &protocolFilter
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				interviews, err := c.Orchestrator.List(ctx, filters)
				if err != nil {
					return fmt.Errorf("failed to list interviews: %w", err)
				}

				out, err := output.FormatInterviewList(interviews, c.Config.Format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by sync status (synced, pending, conflict)")
	cmd.Flags().StringVar(&protocolFilter, "protocol", "", "Filter by protocol ID")

	return cmd
}

func newInterviewShowCommand(getCfg func() *config.Config) *cobra.Command {
	var sealed bool

	cmd := &cobra.Command{
		Use:   "show <interview-id>",
		Short: "Show an interview and its session state",
		Long: `Show one interview. Protected attributes are decrypted for display,
which prompts for the passphrase on first use. Pass --sealed to show
the stored form without decrypting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				iv, err := c.Orchestrator.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to load interview: %w", err)
				}

				data := iv.Data
				if !sealed {
					attrs, err := c.Orchestrator.Data(ctx, args[0])
					if err != nil {
						return fmt.Errorf("failed to decrypt interview data: %w", err)
					}
					data, err = json.Marshal(attrs)
					if err != nil {
						return err
					}
				}

				out, err := output.FormatInterview(iv, data, c.Config.Format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&sealed, "sealed", false, "Show stored data without decrypting protected attributes")

	return cmd
}

func newInterviewUpdateCommand(getCfg func() *config.Config) *cobra.Command {
	var dataArg string

	cmd := &cobra.Command{
		Use:   "update <interview-id>",
		Short: "Merge new session state into an interview",
		Long: `Merge a JSON patch into the interview's session state. Top-level
attributes are replaced whole. Every update is queued for sync
individually, preserving the order edits were made in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readDataArg(dataArg)
			if err != nil {
				return err
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				if err := c.Orchestrator.Update(ctx, args[0], patch); err != nil {
					return fmt.Errorf("failed to update interview: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess("✓ Interview updated"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dataArg, "data", "", "JSON patch to merge, or @file")
	cmd.MarkFlagRequired("data")

	return cmd
}

func newInterviewDeleteCommand(getCfg func() *config.Config) *cobra.Command {
	var noConfirm bool

	cmd := &cobra.Command{
		Use:   "delete <interview-id>",
		Short: "Delete an interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirmDeletion(fmt.Sprintf("interview %s", args[0]), noConfirm)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}

			return withClient(getCfg, func(ctx context.Context, c *Client) error {
				if err := c.Orchestrator.Delete(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete interview: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), output.FormatSuccess("✓ Interview deleted"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noConfirm, "yes", false, "Skip the confirmation prompt")

	return cmd
}
