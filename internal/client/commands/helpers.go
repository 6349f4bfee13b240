package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/fieldsync/fieldsync/internal/client/broadcast"
	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/interview"
	"github.com/fieldsync/fieldsync/internal/client/session"
	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// Client bundles the long-lived collaborators a command works with. It
// is assembled per invocation and torn down when the command returns.
type Client struct {
	Config       *config.Config
	Store        storage.Store
	Session      *session.Service
	Coordinator  *broadcast.Coordinator
	Orchestrator *interview.Orchestrator
}

// Close flushes pending writes and releases everything in dependency
// order.
func (c *Client) Close() {
	if c.Orchestrator != nil {
		c.Orchestrator.Close()
	}
	if c.Coordinator != nil {
		c.Coordinator.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// withClient opens the local store and its collaborators, runs fn, and
// tears everything down afterwards.
func withClient(getCfg func() *config.Config, fn func(ctx context.Context, c *Client) error) error {
	cfg := getCfg()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	client := &Client{
		Config:      cfg,
		Store:       store,
		Session:     session.New(passphrasePrompter()),
		Coordinator: broadcast.New(cfg.BroadcastDir),
	}
	client.Orchestrator = interview.New(store, client.Session, client.Coordinator, cfg.DebounceInterval)
	defer client.Close()

	return fn(context.Background(), client)
}

// passphrasePrompter asks for the encryption passphrase interactively.
// The session service guarantees at most one prompt is pending at a
// time, so this form never stacks.
func passphrasePrompter() session.Prompter {
	return session.PrompterFunc(func(ctx context.Context) (string, error) {
		var passphrase string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Passphrase").
					Description("Required to access protected interview attributes").
					Value(&passphrase).
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if len(s) == 0 {
							return fmt.Errorf("passphrase is required")
						}
						return nil
					}),
			),
		)

		if err := form.RunWithContext(ctx); err != nil {
			return "", fmt.Errorf("passphrase entry cancelled: %w", err)
		}
		return passphrase, nil
	})
}

// confirmDeletion prompts the user to confirm a destructive operation.
// If noConfirm is true, it skips the prompt.
func confirmDeletion(what string, noConfirm bool) (bool, error) {
	if noConfirm {
		return true, nil
	}

	var confirm bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s?", what)).
				Description("This removes the local copy; deletions of synced interviews propagate on the next sync.").
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("operation cancelled: %w", err)
	}

	return confirm, nil
}
