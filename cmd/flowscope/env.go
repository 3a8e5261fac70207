package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/dbutil"
	"github.com/pthm/flowscope/pkg/analyzer"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

// analysisFlags are shared by commands that run the engine.
type analysisFlags struct {
	dir              string
	maxDepth         int
	workers          int
	alternate        bool
	excludeExitEdges bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.dir, "dir", "", "flows directory (overrides flows_dir and source)")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "sub-workflow recursion limit (default from config)")
	fs.IntVar(&f.workers, "workers", 0, "concurrent sub-workflow fetches (default from config)")
	fs.BoolVar(&f.alternate, "alternate", false, "repeat connector and reference passes until stable")
	fs.BoolVar(&f.excludeExitEdges, "exclude-exit-edges", false, "do not treat a loop's exit target as inside the loop")
}

// options merges flags over the analysis config.
func (f *analysisFlags) options() analyzer.Options {
	return analyzer.Options{
		MaxDepth:         resolveInt(f.maxDepth, cfg.Analysis.MaxDepth),
		Workers:          resolveInt(f.workers, cfg.Analysis.Workers),
		Alternate:        resolveBool(f.alternate, cfg.Analysis.AlternatePasses),
		ExcludeExitEdges: resolveBool(f.excludeExitEdges, cfg.Analysis.ExcludeExitEdges),
	}
}

// resolveDSN gets the store DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("store configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("store URL is required (use --db or set store.url in config)", nil)
	}
	return dsn, nil
}

// openDB connects to the configured store database.
func openDB(ctx context.Context, flagDSN string) (*sql.DB, dbutil.Dialect, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, "", cli.ConfigError("store configuration", err)
	}
	dsn, err := resolveDSN(flagDSN)
	if err != nil {
		return nil, "", err
	}
	db, err := dbutil.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, "", cli.DBConnectError("connecting to store", err)
	}
	return db, dialect, nil
}

// openStore opens the run store. The returned close function is never nil.
func openStore(ctx context.Context, flagDSN string) (*store.Store, func(), error) {
	db, dialect, err := openDB(ctx, flagDSN)
	if err != nil {
		return nil, func() {}, err
	}
	return store.New(db, dialect), func() { _ = db.Close() }, nil
}

// openSource opens the configured flow source. dir overrides flows_dir and
// forces the dir source.
func openSource(ctx context.Context, dir, flagDSN string) (source.Source, func(), error) {
	if dir != "" || cfg.Source != cli.SourceSQL {
		return source.NewDir(cfg.ResolvedFlowsDir(dir)), func() {}, nil
	}
	db, dialect, err := openDB(ctx, flagDSN)
	if err != nil {
		return nil, func() {}, err
	}
	return source.NewSQL(db, dialect), func() { _ = db.Close() }, nil
}
