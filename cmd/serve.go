package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/server"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

var (
	serveAddr   string
	serveStrict bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyses over HTTP",
	Long: `Starts an HTTP API:
  POST /api/v1/summary    per-time summary of an uploaded dataset
  POST /api/v1/profiles   per-subject series for plotting
  POST /api/v1/nca        full report (query: start, end, terminal_times, stats, strict)
  POST /api/v1/generate   synthetic dataset (JSON body; ?format=csv)
  GET  /healthz, /metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := settings()
		addr := c.ServeAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		stats, err := summary.ParseStatistics(c.DefaultStats)
		if err != nil {
			return err
		}
		srv, err := server.New(server.Config{
			Addr:            addr,
			BodyLimitMB:     c.ServeBodyLimitMB,
			Analysis:        pk.Options{Strict: serveStrict || c.Strict, Workers: c.Workers},
			DefaultStats:    stats,
			Registry:        registry,
			MaxGenerateRows: c.ServeMaxGenerateRows,
		}, logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (default from config serve_addr)")
	serveCmd.Flags().BoolVar(&serveStrict, "strict", false, "strict preconditions by default for /api/v1/nca")
}
