package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/output"
	"github.com/dotcommander/asanasense/internal/rules"
)

// NewRulesCmd creates the rules command. It parses monitored_variables without
// touching the network, so it works before a token is configured.
func NewRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show parsed monitored variables, their boundaries and the fetch horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Effective(cmd.Flags())
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(buildRulesResp(s.MonitoredVariables, nowFunc()))
		},
	}
}

type ruleResp struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Timeframe string `json:"timeframe"`
	Horizon   string `json:"horizon"`
	Boundary  string `json:"boundary"`
}

type rulesResp struct {
	Rules            []ruleResp    `json:"rules"`
	Dropped          []droppedResp `json:"dropped_rules"`
	StateRule        string        `json:"state_rule,omitempty"`
	FetchHorizonDays int           `json:"fetch_horizon_days"`
	CompletedSince   string        `json:"completed_since"`
}

func buildRulesResp(names []string, today time.Time) rulesResp {
	set, dropped := rules.Parse(names, nil)

	resp := rulesResp{
		Rules:            make([]ruleResp, 0, set.Len()),
		Dropped:          droppedView(dropped),
		StateRule:        set.StateRule(),
		FetchHorizonDays: set.FetchHorizon(),
		CompletedSince:   today.AddDate(0, 0, -set.FetchHorizon()).Format(rules.DateLayout),
	}
	for _, r := range set.Rules() {
		resp.Rules = append(resp.Rules, ruleResp{
			Name:      r.Name,
			Kind:      string(r.Kind),
			Timeframe: string(r.Timeframe),
			Horizon:   r.Horizon.String(),
			Boundary:  rules.Boundary(r, today),
		})
	}
	return resp
}
