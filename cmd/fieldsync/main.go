package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/commands"
	"github.com/fieldsync/fieldsync/internal/client/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	cfg *config.Config

	remoteURL  string
	configPath string
	verbose    bool
	format     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "fieldsync - offline-first interview synchronization",
	Long: `fieldsync keeps survey interviews usable without a network connection.
Protocols and their assets are cached locally, every interview change is
recorded in a replay queue, and the queue is pushed to the server when
connectivity returns. Sensitive interview attributes are encrypted at
rest with a passphrase-derived key.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("remote") {
			cfg.RemoteURL = remoteURL
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verbose
		}
		if cmd.Flags().Changed("format") {
			cfg.Format = format
		}

		if err := cfg.ValidateFormat(); err != nil {
			return err
		}

		if cfg.Verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}

		logrus.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
			DisableColors:    false,
		})

		if err := cfg.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}

		logrus.Debugf("Configuration loaded: remote=%s, format=%s", cfg.RemoteURL, cfg.Format)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "Server base URL [env: FIELDSYNC_REMOTE_URL]")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $HOME/.fieldsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format (text, json, yaml) [env: FIELDSYNC_FORMAT]")

	addCommands()
}

// addCommands adds all subcommands to the root command
func addCommands() {
	// Use a closure to provide lazy access to cfg
	getCfg := func() *config.Config { return cfg }

	rootCmd.AddCommand(commands.NewProtocolCommands(getCfg))
	rootCmd.AddCommand(commands.NewInterviewCommands(getCfg))
	rootCmd.AddCommand(commands.NewSyncCommand(getCfg))
	rootCmd.AddCommand(commands.NewConflictCommands(getCfg))
	rootCmd.AddCommand(commands.NewQuotaCommand(getCfg))
	rootCmd.AddCommand(commands.NewErrorsCommand(getCfg))
	rootCmd.AddCommand(commands.NewVersionCommand(getCfg, version, commit, buildDate))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
