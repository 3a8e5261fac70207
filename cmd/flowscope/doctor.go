package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/doctor"
	"github.com/pthm/flowscope/pkg/store"
)

var (
	doctorDir     string
	doctorDB      string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks on the flow source and run store.`,
	Example: `  # Run health checks
  flowscope doctor

  # Run with verbose output
  flowscope doctor --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		verboseFlag := resolveBool(doctorVerbose, cfg.Doctor.Verbose)

		src, closeSrc, err := openSource(ctx, doctorDir, doctorDB)
		if err != nil {
			return err
		}
		defer closeSrc()

		var runs *store.Store
		if doctorDB != "" || cfg.HasStore() {
			var closeStore func()
			runs, closeStore, err = openStore(ctx, doctorDB)
			if err != nil {
				return err
			}
			defer closeStore()
		}

		if !quiet {
			fmt.Println("flowscope doctor - Health Check")
		}

		d := doctor.New(src, runs)
		if cfg.Doctor.StaleAfter > 0 {
			d.StaleAfter = cfg.Doctor.StaleAfter
		}
		report, err := d.Run(ctx)
		if err != nil {
			return cli.GeneralError("running doctor", err)
		}

		report.Print(os.Stdout, verboseFlag)

		if report.HasErrors() {
			return cli.GeneralError("health checks failed", nil)
		}
		return nil
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDir, "dir", "", "flows directory (overrides flows_dir and source)")
	f.StringVar(&doctorDB, "db", "", "store URL (overrides store.url)")
	f.BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}
