package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/ctxlog"
	"github.com/pthm/flowscope/pkg/analyzer"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

var (
	analyzeFlags  analysisFlags
	analyzeFormat string
	analyzeDB     string
	analyzeStore  bool
	analyzeDryRun bool
	analyzeForce  bool
	analyzeCheck  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <flow>",
	Short: "Analyze a workflow and its sub-workflows",
	Long: `Analyze a workflow: build its element graph, find elements running inside
loops, resolve sub-workflows, and score the need for bulkification.

The argument is a flow name looked up in the configured source, or a path to
a definition file.`,
	Example: `  # Analyze a flow from the flows directory
  flowscope analyze Account_After_Save

  # Analyze a file and print JSON
  flowscope analyze flows/Account_After_Save.flow-meta.xml --format json

  # Record the run, skipping it if nothing changed
  flowscope analyze Account_After_Save --store

  # Preview the SQL that would record the run
  flowscope analyze Account_After_Save --dry-run

  # Fail (exit 1) when the flow needs bulkification
  flowscope analyze Account_After_Save --check`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.CheckFormat(analyzeFormat, cli.FormatText, cli.FormatJSON, cli.FormatYAML); err != nil {
			return err
		}
		return runAnalyze(cmd, args[0])
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFormat, "format", "o", cli.FormatText, "output format: text, json or yaml")
	f.StringVar(&analyzeDB, "db", "", "store URL (overrides store.url)")
	f.BoolVar(&analyzeStore, "store", false, "record the run in the store")
	f.BoolVar(&analyzeDryRun, "dry-run", false, "print the SQL that would record the run")
	f.BoolVar(&analyzeForce, "force", false, "record the run even if the flow is unchanged")
	f.BoolVar(&analyzeCheck, "check", false, "exit 1 when the flow needs bulkification")
}

func runAnalyze(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	log := ctxlog.FromContext(ctx)

	src, closeSrc, err := openSource(ctx, analyzeFlags.dir, analyzeDB)
	if err != nil {
		return err
	}
	defer closeSrc()

	raw, err := src.Fetch(ctx, name)
	if err != nil {
		return cli.AnalysisError("fetching flow", err)
	}

	opts := analyzeFlags.options()
	log.Debug("analyzing", "flow", raw.Name, "origin", raw.Origin, "max_depth", opts.MaxDepth, "workers", opts.Workers)

	a, err := analyzer.New(src, opts).AnalyzeRaw(ctx, raw)
	if err != nil {
		return cli.AnalysisError("analyzing flow", err)
	}

	switch {
	case analyzeDryRun:
		if err := recordRun(cmd, a, raw, true); err != nil {
			return err
		}
	case analyzeStore:
		if err := recordRun(cmd, a, raw, false); err != nil {
			return err
		}
		fallthrough
	default:
		if !quiet {
			if err := cli.WriteAnalysis(os.Stdout, a, analyzeFormat); err != nil {
				return cli.GeneralError("writing output", err)
			}
		}
	}

	if analyzeCheck && a.ShouldBulkify {
		return cli.GeneralError(fmt.Sprintf("%s needs bulkification", a.Name), nil)
	}
	return nil
}

// recordRun saves a, or prints the SQL that would save it.
func recordRun(cmd *cobra.Command, a *flow.WorkflowAnalysis, raw source.RawMetadata, dryRun bool) error {
	ctx := cmd.Context()
	checksum := store.Fingerprint(raw.Content, a)

	if dryRun {
		dialect, err := cfg.Dialect()
		if err != nil {
			return cli.ConfigError("store configuration", err)
		}
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
		}
		_, _, err = store.New(nil, dialect).Save(ctx, a, checksum, store.SaveOptions{DryRun: os.Stdout})
		if err != nil {
			return cli.GeneralError("rendering run", err)
		}
		return nil
	}

	runs, closeStore, err := openStore(ctx, analyzeDB)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, skipped, err := runs.Save(ctx, a, checksum, store.SaveOptions{Force: analyzeForce})
	if err != nil {
		return cli.GeneralError("recording run", err)
	}

	if !quiet {
		if skipped {
			fmt.Fprintf(os.Stderr, "Flow unchanged since run %s, not recorded. Use --force to record anyway.\n", rec.ID)
		} else {
			fmt.Fprintf(os.Stderr, "Recorded run %s.\n", rec.ID)
		}
	}
	return nil
}
