package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/metrics"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

var (
	summarizeIn     inputFlags
	summarizeFormat string

	hlIn       inputFlags
	hlTerminal string
	hlStats    string
	hlFormat   string

	aucIn         inputFlags
	aucStart      float64
	aucEnd        float64
	aucStats      string
	aucFormat     string
	aucPerSubject bool
)

var summarizeCmd = &cobra.Command{
	Use:     "summarize <file>",
	Short:   "Summarize concentrations at each time point",
	Example: `  nca summarize pk.csv`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		start := time.Now()
		defer func() { metrics.ObserveAnalysis("summary", time.Since(start), err) }()

		ds, err := summarizeIn.load(args[0])
		if err != nil {
			return err
		}
		r := partialReport(args[0], report.Params{}, report.Section{Label: report.SummaryLabel, Table: summary.ByTime(ds)})
		return render(cmd.OutOrStdout(), summarizeFormat, r)
	},
}

var halfLifeCmd = &cobra.Command{
	Use:   "half-life <file>",
	Short: "Estimate terminal half-life from the given terminal time points",
	Example: `  nca half-life pk.csv --terminal-times 8,12,24
  nca half-life pk.csv --terminal-times 8,12,24 --stats mean,sd,median`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		start := time.Now()
		defer func() { metrics.ObserveAnalysis("half-life", time.Since(start), err) }()

		terminal, err := resolveTerminalTimes(hlTerminal)
		if err != nil {
			return err
		}
		if len(terminal) == 0 {
			return fmt.Errorf("--terminal-times is required (or set terminal_times in config)")
		}
		stats, err := resolveStats(hlStats)
		if err != nil {
			return err
		}
		ds, err := hlIn.load(args[0])
		if err != nil {
			return err
		}
		m, err := newEngine(ds, false).HalfLife(cmd.Context(), terminal)
		if err != nil {
			return err
		}
		return renderMetric(cmd.OutOrStdout(), hlFormat, args[0], report.Params{TerminalTimes: terminal, Stats: stats}, m)
	},
}

var aucCmd = &cobra.Command{
	Use:   "auc <file>",
	Short: "Compute the area under the curve over a time window",
	Example: `  nca auc pk.csv --start 0 --end 24
  nca auc pk.csv --end 12 --per-subject`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		start := time.Now()
		defer func() { metrics.ObserveAnalysis("auc", time.Since(start), err) }()

		stats, err := resolveStats(aucStats)
		if err != nil {
			return err
		}
		ds, err := aucIn.load(args[0])
		if err != nil {
			return err
		}
		w := resolveWindow(cmd, ds, aucStart, aucEnd)
		if err := w.Validate(); err != nil {
			return err
		}
		m, err := newEngine(ds, false).AUC(cmd.Context(), w)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := renderMetric(out, aucFormat, args[0], report.Params{Window: w, Stats: stats}, m); err != nil {
			return err
		}
		if aucPerSubject {
			return writeSubjectValues(out, m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(halfLifeCmd)
	rootCmd.AddCommand(aucCmd)

	summarizeIn.register(summarizeCmd)
	summarizeCmd.Flags().StringVar(&summarizeFormat, "format", "", "output format: text|markdown|json|yaml (default from config)")

	hlIn.register(halfLifeCmd)
	halfLifeCmd.Flags().StringVar(&hlTerminal, "terminal-times", "", "comma-separated terminal time points used for the fit")
	halfLifeCmd.Flags().StringVar(&hlStats, "stats", "", "statistics to report (default: all)")
	halfLifeCmd.Flags().StringVar(&hlFormat, "format", "", "output format: text|markdown|json|yaml (default from config)")

	aucIn.register(aucCmd)
	aucCmd.Flags().Float64Var(&aucStart, "start", 0, "window start time")
	aucCmd.Flags().Float64Var(&aucEnd, "end", 0, "window end time (default: last observed time)")
	aucCmd.Flags().StringVar(&aucStats, "stats", "", "statistics to report (default: all)")
	aucCmd.Flags().StringVar(&aucFormat, "format", "", "output format: text|markdown|json|yaml (default from config)")
	aucCmd.Flags().BoolVar(&aucPerSubject, "per-subject", false, "also list each subject's AUC")
}

// partialReport wraps standalone sections so the report sinks can render them.
func partialReport(name string, p report.Params, sections ...report.Section) *report.Report {
	return &report.Report{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Params:    p,
		Sections:  sections,
	}
}

func renderMetric(w io.Writer, format, name string, p report.Params, m *pk.Metric) error {
	metrics.ObserveExclusions(m.Name, len(m.Excluded))
	sec, err := report.MetricSection(m, p.Stats)
	if err != nil {
		return err
	}
	return render(w, format, partialReport(name, p, sec))
}

func render(w io.Writer, format string, r *report.Report) error {
	if format == "" {
		format = settings().ReportFormat
	}
	sink, err := report.NewSink(format, w)
	if err != nil {
		return err
	}
	return r.Stream(sink)
}

func writeSubjectValues(w io.Writer, m *pk.Metric) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ID\t%s\t\n", m.Name)
	for _, v := range m.Values {
		fmt.Fprintf(tw, "%d\t%s\t\n", v.Subject, dataset.FormatFloat(v.Value))
	}
	return tw.Flush()
}

// analyze runs the full report for ds; shared by the nca and study commands.
func analyze(ctx context.Context, ds *dataset.Dataset, name string, p report.Params, strict bool) (r *report.Report, err error) {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis("nca", time.Since(start), err) }()

	r, err = report.Build(ctx, newEngine(ds, strict), name, p)
	if err != nil {
		return nil, err
	}
	for _, sec := range r.Sections {
		metrics.ObserveExclusions(sec.Label, len(sec.Excluded))
	}
	logger.Debug().Str("report_id", r.ID.String()).Int("sections", len(r.Sections)).Msg("report built")
	return r, nil
}
