package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/B-Borecki/seu-injection-lab/internal/analysis"
)

type windowsOptions struct {
	log        string
	window     uint32
	kind       string
	spikeLimit uint32
}

type mismatchOptions struct {
	baseline string
	run      string
	window   uint32
}

type recoveryOptions struct {
	baseline     string
	run          string
	flipsFrom    string
	percentile   float64
	hold         int
	searchCap    int
	sampleMillis int
}

type costOptions struct {
	runs []string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seuanalyze",
		Short:         "Analyze magnetorquer diagnostic logs from SEU runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newWindowsCmd(), newMismatchCmd(), newRecoveryCmd(), newCostCmd())
	return root
}

func newWindowsCmd() *cobra.Command {
	opts := windowsOptions{}
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Count saturated commands or command spikes per window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := analysis.ParseFile(opts.log)
			if err != nil {
				return err
			}
			switch opts.kind {
			case "sat":
				return analysis.WriteWindowsCSV(cmd.OutOrStdout(), "sat_count",
					analysis.SaturationWindows(l, opts.window))
			case "spike":
				return analysis.WriteWindowsCSV(cmd.OutOrStdout(), "spike_count",
					analysis.SpikeWindows(l, opts.window, opts.spikeLimit))
			}
			return fmt.Errorf("unknown --kind %q (want sat or spike)", opts.kind)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.log, "log", "", "diagnostic log to read")
	f.Uint32Var(&opts.window, "window", analysis.DefaultWindow, "window size in samples")
	f.StringVar(&opts.kind, "kind", "sat", "what to count: sat or spike")
	f.Uint32Var(&opts.spikeLimit, "spike-threshold", analysis.DefaultSpikeThresh, "per-axis step above which a command is a spike")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func newMismatchCmd() *cobra.Command {
	opts := mismatchOptions{}
	cmd := &cobra.Command{
		Use:   "mismatch",
		Short: "Count commands that differ from the baseline run per window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := analysis.ParseFile(opts.baseline)
			if err != nil {
				return err
			}
			run, err := analysis.ParseFile(opts.run)
			if err != nil {
				return err
			}
			return analysis.WriteWindowsCSV(cmd.OutOrStdout(), "mismatch_count",
				analysis.MismatchWindows(base, run, opts.window))
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseline, "baseline", "", "fault-free reference log")
	f.StringVar(&opts.run, "run", "", "log to compare")
	f.Uint32Var(&opts.window, "window", analysis.DefaultWindow, "window size in samples")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newRecoveryCmd() *cobra.Command {
	opts := recoveryOptions{}
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Measure recovery time after each injected flip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := analysis.ParseFile(opts.baseline)
			if err != nil {
				return err
			}
			run, err := analysis.ParseFile(opts.run)
			if err != nil {
				return err
			}
			flips := run
			if opts.flipsFrom != "" {
				if flips, err = analysis.ParseFile(opts.flipsFrom); err != nil {
					return err
				}
			}
			thr, err := analysis.AmaxThreshold(base, opts.percentile)
			if err != nil {
				return fmt.Errorf("baseline threshold: %w", err)
			}

			rs := analysis.RecoveryTimes(run, flips.FlipSeqs(), thr, opts.hold, opts.searchCap)
			if err := analysis.WriteRecoveryCSV(cmd.OutOrStdout(), rs, opts.sampleMillis); err != nil {
				return err
			}
			sum := analysis.SummarizeRecovery(rs)
			fmt.Fprintf(cmd.ErrOrStderr(),
				"threshold=%d flips=%d recovered=%d median_ms=%d p90_ms=%d worst_ms=%d\n",
				thr, sum.Flips, sum.Recovered,
				sum.Median*opts.sampleMillis, sum.P90*opts.sampleMillis, sum.Worst*opts.sampleMillis)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseline, "baseline", "", "fault-free reference log")
	f.StringVar(&opts.run, "run", "", "log with injected upsets")
	f.StringVar(&opts.flipsFrom, "flips", "", "read GDB-SEU lines from this file instead of --run")
	f.Float64Var(&opts.percentile, "percentile", analysis.DefaultPercentile, "baseline amax percentile used as threshold")
	f.IntVar(&opts.hold, "hold", analysis.DefaultHold, "consecutive in-threshold samples required")
	f.IntVar(&opts.searchCap, "search-cap", analysis.DefaultSearchCap, "samples searched after each flip")
	f.IntVar(&opts.sampleMillis, "sample-ms", analysis.DefaultSampleMillis, "sample period in milliseconds")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newCostCmd() *cobra.Command {
	opts := costOptions{}
	cmd := &cobra.Command{
		Use:     "cost",
		Short:   "Tabulate protection cost from COST lines",
		Example: "  seuanalyze cost --run baseline=logs/base.log --run tmr_srl=logs/both.log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := make([]analysis.CostRow, 0, len(opts.runs))
			for _, raw := range opts.runs {
				name, path, err := splitRun(raw)
				if err != nil {
					return err
				}
				l, err := analysis.ParseFile(path)
				if err != nil {
					return err
				}
				row, err := analysis.ComputeCost(name, l)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			return analysis.WriteCostCSV(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringArrayVar(&opts.runs, "run", nil, "name=path of a run log (repeatable)")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

// splitRun parses "name=path"; a bare path is named after itself.
func splitRun(raw string) (string, string, error) {
	name, path, ok := strings.Cut(raw, "=")
	if !ok {
		path = raw
		name = raw
	}
	if strings.TrimSpace(path) == "" || strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("invalid --run %q, want name=path", raw)
	}
	return name, path, nil
}
