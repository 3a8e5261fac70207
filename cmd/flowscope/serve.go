package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pthm/flowscope/internal/cli"
	"github.com/pthm/flowscope/internal/server"
	"github.com/pthm/flowscope/pkg/store"
)

var (
	serveFlags analysisFlags
	serveAddr  string
	serveDB    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve analyses over HTTP",
	Long: `Serve analyses over HTTP. When a store is configured, recorded runs can
be read back and posted definitions can be recorded with ?store=true.`,
	Example: `  # Serve on the configured address
  flowscope serve

  # Analyze a flow
  curl localhost:8080/v1/flows/Account_After_Save/analysis`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, closeSrc, err := openSource(ctx, serveFlags.dir, serveDB)
		if err != nil {
			return err
		}
		defer closeSrc()

		var runs *store.Store
		if serveDB != "" || cfg.HasStore() {
			var closeStore func()
			runs, closeStore, err = openStore(ctx, serveDB)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := runs.EnsureSchema(ctx); err != nil {
				return cli.GeneralError("creating runs table", err)
			}
		}

		if verbose == 0 {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.New(server.Config{
			Source:  src,
			Options: serveFlags.options(),
			Runs:    runs,
			Logger:  logger,
		})
		if err := srv.Run(ctx, resolveString(serveAddr, cfg.Serve.Addr)); err != nil {
			return cli.GeneralError("serving", err)
		}
		return nil
	},
}

func init() {
	serveFlags.register(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", "", "listen address (overrides serve.addr)")
	f.StringVar(&serveDB, "db", "", "store URL (overrides store.url)")
}
