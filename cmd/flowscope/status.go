package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/pkg/store"
)

var (
	statusDB    string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded analysis runs",
	Long:  `Show the run store state and the most recent analysis runs.`,
	Example: `  # Check status
  flowscope status --db postgres://localhost/flows`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runs, closeStore, err := openStore(ctx, statusDB)
		if err != nil {
			return err
		}
		defer closeStore()

		s, err := runs.GetStatus(ctx)
		if err != nil {
			return cli.GeneralError("getting status", err)
		}

		if !s.TableExists {
			fmt.Printf("Runs table:   missing\n\n")
			fmt.Println("No analysis has been recorded yet.")
			fmt.Println("Run 'flowscope analyze <flow> --store' to record one.")
			return nil
		}
		fmt.Println("Runs table:   present")
		fmt.Printf("Runs:         %d\n", s.Runs)
		fmt.Printf("Flows:        %d\n", s.Flows)
		if s.LastRunAt != nil {
			fmt.Printf("Last run:     %s\n", s.LastRunAt.Format(time.RFC3339))
		}
		if s.Runs == 0 || statusLimit <= 0 {
			return nil
		}

		recs, err := runs.List(ctx, statusLimit)
		if err != nil {
			return cli.GeneralError("listing runs", err)
		}
		fmt.Println()
		writeRuns(recs)
		return nil
	},
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusDB, "db", "", "store URL (overrides store.url)")
	f.IntVar(&statusLimit, "limit", 10, "number of recent runs to list")
}

func writeRuns(recs []store.Record) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FLOW\tVERSION\tSCORE\tBULKIFY\tCOMPLEXITY\tRECORDED")
	for _, r := range recs {
		bulkify := "no"
		if r.ShouldBulkify {
			bulkify = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\n",
			r.Flow, r.FlowVersion, r.BulkificationScore, bulkify, r.CumulativeComplexity,
			r.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
