package commands

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	err := NewRootCmd(version).Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

// NewRootCmd wires every subcommand under the asanasense root.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "asanasense",
		Short:         "Asana task counters and lists as a polled sensor",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env only fills variables that are not already set.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("ignoring unreadable .env", "error", err.Error())
			}

			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --config into app-level resolver.
			if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
				app.SetConfigPathOverride(path)
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "Config file (default: ~/.config/asanasense/config.yaml, $ASANASENSE_CONFIG)")
	root.PersistentFlags().String("token", "", "Asana personal access token (default: $ASANASENSE_ACCESS_TOKEN)")
	root.PersistentFlags().String("workspace", "", "Asana workspace gid (default: $ASANASENSE_WORKSPACE)")
	root.PersistentFlags().String("history-db", "", "SQLite cycle journal path; empty disables it")
	root.Flags().BoolP("version", "v", false, "version for asanasense")

	root.AddCommand(NewUpdateCmd())
	root.AddCommand(NewPollCmd())
	root.AddCommand(NewRulesCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewDoctorCmd())

	return root
}
