package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/asana"
	"github.com/dotcommander/asanasense/internal/rules"
	"github.com/dotcommander/asanasense/internal/sensor"
)

// runtime is one configured sensor plus its optional journal.
type runtime struct {
	settings app.Settings
	sensor   *sensor.Sensor
	dropped  []*rules.DroppedRule
	close    func()
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	s, err := app.Resolve(cmd.Flags())
	if err != nil {
		return nil, err
	}

	journal, closeJournal, err := openJournal(cmd.Context(), s)
	if err != nil {
		return nil, err
	}

	client := asana.NewClient(s.AccessToken,
		asana.WithBaseURL(s.APIBase),
		asana.WithMaxPages(s.MaxPages),
	)

	opts := []sensor.Option{sensor.WithClock(nowFunc)}
	if journal != nil {
		opts = append(opts, sensor.WithRecorder(journal))
	}
	sn, dropped := sensor.New(sensor.Config{
		Name:      s.Name,
		Workspace: s.Workspace,
		Variables: s.MonitoredVariables,
	}, client, opts...)

	return &runtime{settings: s, sensor: sn, dropped: dropped, close: closeJournal}, nil
}

type droppedResp struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

func droppedView(dropped []*rules.DroppedRule) []droppedResp {
	out := make([]droppedResp, 0, len(dropped))
	for _, d := range dropped {
		out = append(out, droppedResp{Name: d.Name, Reason: string(d.Reason), Error: d.Error()})
	}
	return out
}

type cycleResp struct {
	Snapshot sensor.Snapshot `json:"snapshot"`
	Outcome  sensor.Outcome  `json:"outcome"`
	Error    string          `json:"error,omitempty"`
	Dropped  []droppedResp   `json:"dropped_rules,omitempty"`
}

func newCycleResp(rt *runtime, o sensor.Outcome) cycleResp {
	return cycleResp{
		Snapshot: rt.sensor.Snapshot(),
		Outcome:  o,
		Error:    o.ErrorMessage(),
		Dropped:  droppedView(rt.dropped),
	}
}
