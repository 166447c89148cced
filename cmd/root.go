package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/nca-cli/internal/config"
	"github.com/KaramelBytes/nca-cli/internal/logging"
	"github.com/KaramelBytes/nca-cli/internal/metrics"
)

var (
	// Global flags
	cfgFile         string
	debug           bool
	flagLogFormat   string
	flagMetricsFile string

	// Loaded configuration
	cfg *cfgpkg.Global

	logger   = zerolog.Nop()
	registry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "nca",
	Short: "NCA CLI: noncompartmental pharmacokinetic analysis",
	Long: `nca reads concentration-time datasets (CSV, TSV or XLSX) and computes
summary statistics, Cmax, Tmax, terminal half-life, AUC, Vd and CL per subject.
It can also generate synthetic one-compartment IV bolus data and serve the
analyses over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path := settings().MetricsFile
		if path == "" {
			return nil
		}
		if err := metrics.WriteTextfile(path, registry); err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		}
		return nil
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.nca/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")

	if err := metrics.Register(registry); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = defaultConfig()
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if debug {
		cfg.LogLevel = "debug"
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = flagMetricsFile
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
}

func defaultConfig() *cfgpkg.Global {
	return &cfgpkg.Global{
		ReportFormat:     "text",
		LogLevel:         "info",
		LogFormat:        "console",
		ServeAddr:        ":8080",
		ServeBodyLimitMB: 10,
	}
}

// settings returns the loaded configuration or built-in defaults.
func settings() *cfgpkg.Global {
	if cfg == nil {
		return defaultConfig()
	}
	return cfg
}
