package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/client/config"
	"github.com/fieldsync/fieldsync/internal/client/output"
)

// VersionInfo holds version information
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// NewVersionCommand creates the version command
func NewVersionCommand(getCfg func() *config.Config, version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  "Display the version, commit hash, and build date of the fieldsync client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()

			versionInfo := VersionInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
			}

			if cfg.Format == "text" {
				fmt.Printf("fieldsync CLI\n")
				fmt.Printf("Version:    %s\n", version)
				fmt.Printf("Commit:     %s\n", commit)
				fmt.Printf("Build Date: %s\n", buildDate)
				return nil
			}

			formatter, err := output.NewFormatter(cfg.Format)
			if err != nil {
				formatter = output.NewTextFormatter()
			}

			out, err := formatter.Format(versionInfo)
			if err != nil {
				return fmt.Errorf("failed to format version info: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}

	return cmd
}
