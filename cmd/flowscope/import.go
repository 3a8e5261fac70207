package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/pkg/parser"
	"github.com/pthm/flowscope/pkg/source"
)

var (
	importDir string
	importDB  string
)

var importCmd = &cobra.Command{
	Use:   "import [flow...]",
	Short: "Copy definition files into the SQL source",
	Long: `Copy workflow definitions from the flows directory into the store
database's definitions table, for use with source: sql.

Each definition is parsed first; malformed files are not imported.`,
	Example: `  # Import every flow in the flows directory
  flowscope import --db postgres://localhost/flows

  # Import selected flows
  flowscope import Account_After_Save Contact_Sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := source.NewDir(cfg.ResolvedFlowsDir(importDir))

		names := args
		if len(names) == 0 {
			var err error
			names, err = dir.List(ctx)
			if err != nil {
				return cli.GeneralError("listing flows", err)
			}
		}

		db, dialect, err := openDB(ctx, importDB)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		dst := source.NewSQL(db, dialect)
		if err := dst.EnsureSchema(ctx); err != nil {
			return cli.GeneralError("creating definitions table", err)
		}

		for _, name := range names {
			raw, err := dir.Fetch(ctx, name)
			if err != nil {
				return cli.AnalysisError("reading flow", err)
			}
			if _, err := parser.Parse(raw); err != nil {
				return cli.MalformedError(fmt.Sprintf("parsing %s", name), err)
			}
			if err := dst.Put(ctx, raw); err != nil {
				return cli.GeneralError("importing flow", err)
			}
			if !quiet {
				fmt.Printf("Imported %s (%s)\n", raw.Name, raw.Format)
			}
		}
		return nil
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importDir, "dir", "", "flows directory (overrides flows_dir)")
	f.StringVar(&importDB, "db", "", "store URL (overrides store.url)")
}
