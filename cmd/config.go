package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/nca-cli/internal/config"
	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set nca configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := settings()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "default_stats: %s\n", strings.Join(c.DefaultStats, ","))
		fmt.Fprintf(out, "auc_start: %s\n", dataset.FormatFloat(c.AUCStart))
		if c.AUCEnd != nil {
			fmt.Fprintf(out, "auc_end: %s\n", dataset.FormatFloat(*c.AUCEnd))
		} else {
			fmt.Fprintln(out, "auc_end: (last observed time)")
		}
		fmt.Fprintf(out, "terminal_times: %s\n", floatList(c.TerminalTimes))
		fmt.Fprintf(out, "strict: %t\n", c.Strict)
		fmt.Fprintf(out, "workers: %d\n", c.Workers)
		fmt.Fprintf(out, "report_format: %s\n", c.ReportFormat)
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		fmt.Fprintf(out, "studies_dir: %s\n", c.StudiesDir)
		if c.GenerateSubjects > 0 {
			fmt.Fprintf(out, "generate_subjects: %d\n", c.GenerateSubjects)
		}
		if len(c.GenerateTimes) > 0 {
			fmt.Fprintf(out, "generate_times: %s\n", floatList(c.GenerateTimes))
		}
		if c.GenerateDose != nil {
			fmt.Fprintf(out, "generate_dose: %s\n", dataset.FormatFloat(*c.GenerateDose))
		}
		if c.GenerateHalfLife > 0 {
			fmt.Fprintf(out, "generate_half_life: %s\n", dataset.FormatFloat(c.GenerateHalfLife))
		}
		if c.GenerateSeed > 0 {
			fmt.Fprintf(out, "generate_seed: %d\n", c.GenerateSeed)
		}
		fmt.Fprintf(out, "serve_addr: %s\n", c.ServeAddr)
		fmt.Fprintf(out, "serve_body_limit_mb: %d\n", c.ServeBodyLimitMB)
		if c.ServeMaxGenerateRows > 0 {
			fmt.Fprintf(out, "serve_max_generate_rows: %d\n", c.ServeMaxGenerateRows)
		}
		if c.MetricsFile != "" {
			fmt.Fprintf(out, "metrics_file: %s\n", c.MetricsFile)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long:  "Valid keys: " + strings.Join(cfgpkg.Keys, ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func floatList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = dataset.FormatFloat(v)
	}
	return strings.Join(parts, ",")
}
