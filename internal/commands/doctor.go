package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/output"
	"github.com/dotcommander/asanasense/internal/sensor"
	"github.com/dotcommander/asanasense/internal/store"
)

// NewDoctorCmd reports config resolution and journal connectivity without
// calling Asana.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and cycle journal connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Effective(cmd.Flags())
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				ConfigSource string                `json:"config_source"`
				ConfigOK     bool                  `json:"config_ok"`
				ConfigErr    string                `json:"config_error,omitempty"`
				Settings     app.Settings          `json:"settings"`
				TokenSet     bool                  `json:"token_set"`
				HistoryPath  string                `json:"history_path,omitempty"`
				HistoryOK    bool                  `json:"history_ok"`
				HistoryErr   string                `json:"history_error,omitempty"`
				SchemaVer    int64                 `json:"schema_version,omitempty"`
				Cycles       map[sensor.Status]int `json:"cycles,omitempty"`
				Hint         string                `json:"hint,omitempty"`
			}
			r := resp{
				ConfigSource: app.SettingsSource(),
				Settings:     s,
				TokenSet:     s.AccessToken != "",
				ConfigOK:     true,
			}
			if r.ConfigSource == "" {
				r.ConfigSource = "none (env and flags only)"
			}
			if verr := s.Validate(); verr != nil {
				r.ConfigOK = false
				r.ConfigErr = verr.Error()
				r.Hint = "set access_token and workspace in config.yaml or via ASANASENSE_ACCESS_TOKEN / ASANASENSE_WORKSPACE"
			}

			r.HistoryPath, _ = app.HistoryPath(s)
			journal, closeJournal, err := openJournal(cmd.Context(), s)
			switch {
			case err != nil:
				r.HistoryErr = err.Error()
			case journal != nil:
				defer closeJournal()
				ver, counts, herr := journalHealth(cmd.Context(), journal)
				if herr != nil {
					r.HistoryErr = herr.Error()
				} else {
					r.HistoryOK = true
					r.SchemaVer = ver
					r.Cycles = counts
				}
			}

			return output.PrintSuccess(r)
		},
	}
}

func journalHealth(ctx context.Context, j *store.Journal) (int64, map[sensor.Status]int, error) {
	ver, err := j.SchemaVersion()
	if err != nil {
		return 0, nil, err
	}
	counts, err := j.CountCycles(ctx)
	if err != nil {
		return 0, nil, err
	}
	return ver, counts, nil
}
