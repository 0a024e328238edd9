package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gogotex/gogotex/backend/device-auth/internal/deviceflow"
	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Poll the provider once for every pending device flow and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			if err := cfg.Validate(false); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res := deviceflow.NewScheduler(a.store, a.client, a.schedulerConfig()).Sweep(cmd.Context())
			if res.Err != nil {
				return res.Err
			}
			return printSweep(cmd, res, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printSweep(cmd *cobra.Command, res deviceflow.SweepResult, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"total": res.Total(), "outcomes": res.Outcomes})
	}
	outcomes := make([]string, 0, len(res.Outcomes))
	for o := range res.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	_, _ = fmt.Fprintf(w, "swept %d pending device flows\n", res.Total())
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "  %-16s %d\n", o, res.Outcomes[deviceflow.Outcome(o)])
	}
	return nil
}
