package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/output"
)

// NewPollCmd creates the poll command. It is the scheduler: cycles run one at
// a time, so a slow pagination loop delays the next tick instead of overlapping.
func NewPollCmd() *cobra.Command {
	var (
		cycles   int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run update cycles every scan_interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return cmdErr(err)
			}
			defer rt.close()

			if interval <= 0 {
				interval = rt.settings.ScanInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPoll(ctx, rt, interval, cycles)
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 0, "Stop after N cycles (0 = run until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override scan_interval")

	return cmd
}

func runPoll(ctx context.Context, rt *runtime, interval time.Duration, cycles int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		o := rt.sensor.Update(ctx)
		if err := output.PrintSuccess(newCycleResp(rt, o)); err != nil {
			return err
		}
		if cycles > 0 && n >= cycles {
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("poll stopped", "sensor", rt.sensor.Name(), "cycles", n)
			return nil
		case <-ticker.C:
		}
	}
}
