package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/study"
)

var (
	ncaIn       inputFlags
	ncaStart    float64
	ncaEnd      float64
	ncaTerminal string
	ncaStats    string
	ncaFormat   string
	ncaOutput   string
	ncaStudy    string
	ncaStrict   bool
	ncaQuiet    bool
)

var ncaCmd = &cobra.Command{
	Use:   "nca <file>",
	Short: "Run the full noncompartmental analysis and print the report",
	Long: `Runs every analysis in order: per-time summary, Cmax, Tmax, t1/2,
AUC over the window, Vd and CL. The report is printed and can also be saved
to a file or recorded in a study.`,
	Example: `  nca nca pk.csv --end 24 --terminal-times 8,12,24
  nca nca pk.csv --format markdown -o report.md
  nca nca pk.csv -s trial1 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := ncaFormat
		if format == "" {
			format = settings().ReportFormat
		}
		if _, err := report.NewSink(format, nil); err != nil {
			return err
		}
		stats, err := resolveStats(ncaStats)
		if err != nil {
			return err
		}
		terminal, err := resolveTerminalTimes(ncaTerminal)
		if err != nil {
			return err
		}

		var (
			s     *study.Study
			ds    *dataset.Dataset
			refID string
		)
		path := args[0]
		name := filepath.Base(path)
		if ncaStudy != "" {
			if s, err = loadStudy(ncaStudy); err != nil {
				return err
			}
			opt, err := ncaIn.options()
			if err != nil {
				return err
			}
			var ref *study.DatasetRef
			if ref, ds, err = s.AddDataset(path, "", opt); err != nil {
				return err
			}
			refID = ref.ID
		} else if ds, err = ncaIn.load(path); err != nil {
			return err
		}

		p := report.Params{
			Window:        resolveWindow(cmd, ds, ncaStart, ncaEnd),
			TerminalTimes: terminal,
			Stats:         stats,
		}
		r, err := analyze(cmd.Context(), ds, name, p, ncaStrict)
		if err != nil {
			return err
		}

		if !ncaQuiet {
			if err := render(cmd.OutOrStdout(), format, r); err != nil {
				return err
			}
		}
		if ncaOutput != "" {
			out, err := report.WriteFile(ncaOutput, format, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Report saved as %s file at %s\n", format, out)
		}
		if s != nil {
			run, err := s.AddRun(refID, r, format)
			if err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Run %s recorded in study '%s' (%s)\n", run.ID[:8], s.Name, run.File)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ncaCmd)
	ncaIn.register(ncaCmd)
	ncaCmd.Flags().Float64Var(&ncaStart, "start", 0, "AUC window start time")
	ncaCmd.Flags().Float64Var(&ncaEnd, "end", 0, "AUC window end time (default: last observed time)")
	ncaCmd.Flags().StringVar(&ncaTerminal, "terminal-times", "", "comma-separated terminal time points for t1/2 (default: whole profile)")
	ncaCmd.Flags().StringVar(&ncaStats, "stats", "", "statistics to report (default: all)")
	ncaCmd.Flags().StringVar(&ncaFormat, "format", "", "report format: text|markdown|json|yaml (default from config)")
	ncaCmd.Flags().StringVarP(&ncaOutput, "report", "o", "", "also save the report to this file (extension added when missing)")
	ncaCmd.Flags().StringVarP(&ncaStudy, "study", "s", "", "record the dataset and run in this study")
	ncaCmd.Flags().BoolVar(&ncaStrict, "strict", false, "fail instead of excluding subjects when Vd/CL/AUC preconditions are unmet")
	ncaCmd.Flags().BoolVarP(&ncaQuiet, "quiet", "q", false, "do not print the report")
}
