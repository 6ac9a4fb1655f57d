package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/output"
	"github.com/dotcommander/asanasense/internal/sensor"
	"github.com/dotcommander/asanasense/internal/store"
)

var errHistoryDisabled = errors.New("history_db is not configured")

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	var (
		limit  int
		status string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled update cycles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Effective(cmd.Flags())
			if err != nil {
				return cmdErr(err)
			}
			journal, closeJournal, err := openJournal(cmd.Context(), s)
			if err != nil {
				return cmdErr(err)
			}
			defer closeJournal()
			if journal == nil {
				return cmdErr(errHistoryDisabled)
			}

			p := store.ListCyclesParams{Status: sensor.Status(status), Limit: limit}
			if !all {
				p.SensorName = s.Name
			}
			cycles, err := journal.ListCycles(cmd.Context(), p)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Sensor string         `json:"sensor,omitempty"`
				Count  int            `json:"count"`
				Cycles []*store.Cycle `json:"cycles"`
			}
			return output.PrintSuccess(resp{Sensor: p.SensorName, Count: len(cycles), Cycles: cycles})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max cycles to return")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (updated, fetch_failed)")
	cmd.Flags().BoolVar(&all, "all", false, "Include cycles from every sensor name")

	return cmd
}
