package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/scribe/internal/report"
	"github.com/user/scribe/internal/samples"
	"github.com/user/scribe/internal/scribe"
)

var (
	historyReportDB    string
	historyLimit       int
	historyJSON        bool
	historySampleStore string
	historySampleDir   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openReports(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(ctx, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tWRITERS\tPROCS\tCHARS\tCHARS/SEC\tP50\tP99\tFAILED\tVERIFIED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.1f\t%s\t%s\t%d\t%t\n",
				r.ID, r.StartedAt.Format(time.RFC3339),
				r.Writers, r.Processes, r.Chars, r.CharsPerSec,
				r.P50.Round(time.Microsecond), r.P99.Round(time.Microsecond),
				r.FailedWriters, r.Verified,
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show a saved run, recomputing latency from recorded samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		runID := args[0]
		out := cmd.OutOrStdout()

		var run *report.Run
		if historyReportDB != "" {
			store, err := openReports(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			r, err := store.Get(ctx, runID)
			if err != nil && !errors.Is(err, report.ErrNotFound) {
				return err
			}
			if err == nil {
				run = &r
			}
		}

		var summary *scribe.LatencySummary
		if historySampleStore != "" {
			ss, err := samples.Open(historySampleStore, historySampleDir)
			if err != nil {
				return err
			}
			defer ss.Close()
			recorded, err := ss.Samples(runID)
			if err != nil {
				return err
			}
			if len(recorded) > 0 {
				s := scribe.Summarize(samples.Latencies(recorded))
				summary = &s
			}
		}

		if run == nil && summary == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		if historyJSON {
			return printJSON(out, struct {
				Run     *report.Run            `json:"run,omitempty"`
				Samples *scribe.LatencySummary `json:"samples,omitempty"`
			}{run, summary})
		}
		if run != nil {
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  document:  %s\n", run.DocumentID)
			fmt.Fprintf(out, "  started:   %s\n", run.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "  session:   %d writers, %d processes, %s interval\n", run.Writers, run.Processes, run.Interval)
			fmt.Fprintf(out, "  chars:     %d in %d chunks\n", run.Chars, run.Chunks)
			fmt.Fprintf(out, "  elapsed:   %s\n", run.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "  chars/sec: %.1f\n", run.CharsPerSec)
			fmt.Fprintf(out, "  failed:    %d writers\n", run.FailedWriters)
			fmt.Fprintf(out, "  verified:  %t\n", run.Verified)
		}
		if summary != nil {
			fmt.Fprintln(out, "Insert gaps (from samples)")
			printLatency(out, *summary)
		}
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyReportDB, "report-db", "scribe.db", "SQLite path or postgres:// DSN")
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyShowCmd.Flags().StringVar(&historySampleStore, "sample-store", "", "Sample store kind to recompute latency from: pebble, badger, or bolt")
	historyShowCmd.Flags().StringVar(&historySampleDir, "sample-dir", "scribe-samples", "Directory of the sample store")
	historyCmd.AddCommand(historyShowCmd)
}

func openReports(ctx context.Context) (report.Store, error) {
	if historyReportDB == "" {
		return nil, errors.New("history needs --report-db")
	}
	return report.Open(ctx, historyReportDB)
}
