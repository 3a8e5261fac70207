package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/flowgraph"
	"github.com/pthm/flowscope/pkg/parser"
	"github.com/pthm/flowscope/pkg/source"
)

var (
	validateDir string
	validateDB  string
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow...]",
	Short: "Validate workflow definitions",
	Long: `Parse workflow definitions and report structural warnings such as
connectors that target missing elements and duplicate element names.

With no arguments every definition in the source is validated.`,
	Example: `  # Validate every flow in the flows directory
  flowscope validate

  # Validate specific flows
  flowscope validate Account_After_Save flows/Contact_Sync.flow-meta.xml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, closeSrc, err := openSource(ctx, validateDir, validateDB)
		if err != nil {
			return err
		}
		defer closeSrc()

		names := args
		if len(names) == 0 {
			lister, ok := src.(source.Lister)
			if !ok {
				return cli.ConfigError("source cannot list flows; name them explicitly", nil)
			}
			names, err = lister.List(ctx)
			if err != nil {
				return cli.GeneralError("listing flows", err)
			}
		}

		var firstErr error
		for _, name := range names {
			raw, err := src.Fetch(ctx, name)
			if err == nil {
				err = validateOne(raw)
			}
			if err != nil {
				fmt.Printf("✗ %s: %v\n", name, err)
				if firstErr == nil {
					firstErr = cli.AnalysisError(fmt.Sprintf("validating %s", name), err)
				}
			}
		}
		return firstErr
	},
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateDir, "dir", "", "flows directory (overrides flows_dir and source)")
	f.StringVar(&validateDB, "db", "", "store URL for the sql source")
}

func validateOne(raw source.RawMetadata) error {
	md, err := parser.Parse(raw)
	if err != nil {
		return err
	}
	g := flowgraph.Build(md)
	if !quiet {
		fmt.Printf("✓ %s (%d elements, %d sub-workflow calls)\n", md.Name, g.Len(), len(flowgraph.SubflowCalls(g, nil)))
		for _, w := range g.Warnings {
			fmt.Printf("    warning: %s\n", w)
		}
	}
	return nil
}
