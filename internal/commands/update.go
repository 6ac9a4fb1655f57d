package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/output"
)

// NewUpdateCmd creates the update command: one fetch/bucket/evaluate cycle.
func NewUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Run one update cycle and print the sensor snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return cmdErr(err)
			}
			defer rt.close()

			o := rt.sensor.Update(cmd.Context())
			if o.Err != nil {
				return cmdErr(o.Err)
			}
			return output.PrintSuccess(newCycleResp(rt, o))
		},
	}
}
