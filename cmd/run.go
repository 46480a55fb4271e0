package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wuimap/internal/model"
	"github.com/sells-group/wuimap/internal/pipeline"
	"github.com/sells-group/wuimap/internal/postgis"
)

var (
	runScenarios string
	runRadii     []int
	runOnly      []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify every scenario of a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		manifest, err := pipeline.LoadManifest(runScenarios)
		if err != nil {
			return err
		}
		scenarios, err := manifest.Select(runOnly)
		if err != nil {
			return err
		}
		if len(scenarios) == 0 {
			return eris.Errorf("no scenarios in %s", runScenarios)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := []pipeline.Option{
			pipeline.WithParams(cfg.WUI),
			pipeline.WithDefaultRadii(cfg.Sweep.List()),
		}
		if len(runRadii) > 0 {
			opts = append(opts, pipeline.WithRadii(runRadii))
		}
		if cfg.Grid.CellSize > 0 {
			opts = append(opts, pipeline.WithCellSize(cfg.Grid.CellSize))
		}

		sink, pool, err := initSink(ctx, postgis.ParseSRID(scenarios[0].CRS))
		if err != nil {
			return err
		}
		if pool != nil {
			defer pool.Close()
			opts = append(opts, pipeline.WithSink(sink))
		}

		ws := pipeline.NewWorkspace(cfg.Workspace.Dir, cfg.Workspace.OutputDir)
		runs, err := pipeline.New(st, ws, opts...).RunBatch(ctx, scenarios)
		formatBatch(os.Stdout, runs)
		if err != nil {
			return err
		}

		var failed int
		for _, r := range runs {
			if r.Status == model.RunStatusFailed {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("%d of %d scenarios failed", failed, len(runs))
		}
		return nil
	},
}

// formatBatch writes one line per scenario run of a batch.
func formatBatch(out io.Writer, runs []*model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCENARIO\tYEAR\tSTATUS\tRADII\tOUTPUT")
	for _, r := range runs {
		var radii int
		detail := ""
		if r.Result != nil {
			radii = len(r.Result.Radii)
			detail = r.Result.OutputDir
			if r.Result.Error != "" {
				detail = r.Result.Error
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", r.Scenario, r.Year, r.Status, radii, detail)
	}
	_ = w.Flush()
}

func init() {
	runCmd.Flags().StringVar(&runScenarios, "scenarios", "", "scenario manifest (YAML, required)")
	runCmd.Flags().IntSliceVar(&runRadii, "radii", nil, "window radii to sweep, overriding manifest and config (e.g. 100,500)")
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "run only the named scenarios")
	_ = runCmd.MarkFlagRequired("scenarios")
	rootCmd.AddCommand(runCmd)
}
