package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/flowgraph"
	"github.com/pthm/flowscope/pkg/parser"
)

var (
	graphFlags  analysisFlags
	graphFormat string
	graphDB     string
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow>",
	Short: "Print a workflow's element graph",
	Long: `Print the element graph of one workflow, marking every element that runs
inside a loop. Sub-workflows are not followed.`,
	Example: `  # Render with Graphviz
  flowscope graph Account_After_Save --format dot | dot -Tsvg > flow.svg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.CheckFormat(graphFormat, cli.FormatText, cli.FormatDOT, cli.FormatJSON, cli.FormatYAML); err != nil {
			return err
		}
		ctx := cmd.Context()

		src, closeSrc, err := openSource(ctx, graphFlags.dir, graphDB)
		if err != nil {
			return err
		}
		defer closeSrc()

		raw, err := src.Fetch(ctx, args[0])
		if err != nil {
			return cli.AnalysisError("fetching flow", err)
		}
		md, err := parser.Parse(raw)
		if err != nil {
			return cli.AnalysisError("parsing flow", err)
		}

		opts := graphFlags.options()
		g := flowgraph.Build(md)
		ctxs := flowgraph.PropagateLoopContexts(g, flowgraph.Options{
			Alternate:        opts.Alternate,
			ExcludeExitEdges: opts.ExcludeExitEdges,
		})
		if err := cli.WriteGraph(os.Stdout, md.Name, g, ctxs, graphFormat); err != nil {
			return cli.GeneralError("writing output", err)
		}
		return nil
	},
}

func init() {
	graphFlags.register(graphCmd)
	f := graphCmd.Flags()
	f.StringVarP(&graphFormat, "format", "o", cli.FormatText, "output format: text, dot, json or yaml")
	f.StringVar(&graphDB, "db", "", "store URL for the sql source")
}
