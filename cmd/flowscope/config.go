package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

var (
	configShowSource bool
	configShowFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long: `Show the effective configuration after merging defaults, .env, config file,
and FLOWSCOPE_* environment variables. Passwords are masked.

With --source, a summary of where flow definitions are read from and where
analysis runs are recorded is printed first.`,
	Example: `  # Show effective configuration
  flowscope config show

  # Show where flows and runs live, then the configuration as JSON
  flowscope config show --source -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.CheckFormat(configShowFormat, cli.FormatYAML, cli.FormatJSON); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if configShowSource {
			writeConfigSummary(out, cfg, configPath)
		}
		return cli.WriteStructured(out, cfg.Redacted(), configShowFormat)
	},
}

// writeConfigSummary prints the config file in effect, the flow source and
// the run store, followed by a blank line.
func writeConfigSummary(w io.Writer, c *cli.Config, path string) {
	if path == "" {
		path = "(none, using defaults)"
	}
	fmt.Fprintf(w, "Config file:  %s\n", path)

	switch c.Source {
	case cli.SourceSQL:
		fmt.Fprintf(w, "Flow source:  sql (table %s)\n", source.DefinitionsTable)
	default:
		fmt.Fprintf(w, "Flow source:  dir %s\n", c.ResolvedFlowsDir(""))
	}

	dialect, err := c.Dialect()
	switch {
	case err != nil:
		fmt.Fprintf(w, "Run store:    invalid (%v)\n", err)
	case !c.HasStore():
		fmt.Fprintf(w, "Run store:    %s (not configured)\n", dialect)
	default:
		dsn, err := c.Redacted().DSN()
		if err != nil {
			fmt.Fprintf(w, "Run store:    %s (incomplete: %v)\n", dialect, err)
		} else {
			fmt.Fprintf(w, "Run store:    %s %s (table %s)\n", dialect, dsn, store.RunsTable)
		}
	}
	fmt.Fprintln(w)
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowSource, "source", false, "summarize the config file, flow source and run store first")
	configShowCmd.Flags().StringVarP(&configShowFormat, "format", "o", cli.FormatYAML, "output format: yaml or json")
	configCmd.AddCommand(configShowCmd)
}
