package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nca-cli/internal/config"
	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/parser"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// inputFlags are the parsing options shared by every command that reads a
// dataset file.
type inputFlags struct {
	delimiter string
	decimal   string
	thousands string
	sheetName string
	sheetIdx  int
}

func (in *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.delimiter, "delimiter", "", "CSV delimiter: ',', ';', 'tab' (default by extension)")
	cmd.Flags().StringVar(&in.decimal, "decimal", "", "decimal separator: '.' or ',' (default auto)")
	cmd.Flags().StringVar(&in.thousands, "thousands", "", "thousands separator: ',', '.', 'space'")
	cmd.Flags().StringVar(&in.sheetName, "sheet-name", "", "XLSX sheet name")
	cmd.Flags().IntVar(&in.sheetIdx, "sheet-index", 0, "XLSX sheet index (1-based)")
}

func (in *inputFlags) options() (parser.Options, error) {
	opt := parser.Options{SheetName: in.sheetName, SheetIndex: in.sheetIdx}
	switch strings.ToLower(in.delimiter) {
	case "":
	case ",", "comma":
		opt.Delimiter = ','
	case ";", "semicolon":
		opt.Delimiter = ';'
	case "tab", "\\t", "\t":
		opt.Delimiter = '\t'
	default:
		return opt, fmt.Errorf("invalid --delimiter: %s (use ',', ';' or 'tab')", in.delimiter)
	}
	switch strings.ToLower(in.decimal) {
	case "":
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case ",", "comma":
		opt.DecimalSeparator = ','
	default:
		return opt, fmt.Errorf("invalid --decimal: %s (use '.' or ',')", in.decimal)
	}
	switch strings.ToLower(in.thousands) {
	case "":
	case ",", "comma":
		opt.ThousandsSeparator = ','
	case ".", "dot":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	default:
		return opt, fmt.Errorf("invalid --thousands: %s (use ',', '.' or 'space')", in.thousands)
	}
	return opt, nil
}

// load reads and validates a dataset file.
func (in *inputFlags) load(path string) (*dataset.Dataset, error) {
	opt, err := in.options()
	if err != nil {
		return nil, err
	}
	tab, err := parser.ParseFile(path, opt)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.FromTable(tab)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug().
		Str("file", path).
		Int("subjects", len(ds.Subjects())).
		Int("observations", ds.Len()).
		Msg("dataset loaded")
	return ds, nil
}

// newEngine builds an analysis engine from the effective configuration.
func newEngine(ds *dataset.Dataset, strict bool) *pk.Engine {
	c := settings()
	return pk.NewEngine(ds, pk.Options{Strict: strict || c.Strict, Workers: c.Workers}, logger)
}

// resolveStats parses a --stats flag value, falling back to default_stats.
func resolveStats(flag string) ([]summary.Statistic, error) {
	names := config.SplitList(flag)
	if len(names) == 0 {
		names = settings().DefaultStats
	}
	return summary.ParseStatistics(names)
}

// resolveWindow applies config defaults to the AUC window flags. An unset end
// falls back to auc_end and then to the last observed time.
func resolveWindow(cmd *cobra.Command, ds *dataset.Dataset, start, end float64) pk.Window {
	c := settings()
	w := pk.Window{Start: start, End: end}
	if !cmd.Flags().Changed("start") {
		w.Start = c.AUCStart
	}
	if !cmd.Flags().Changed("end") {
		if c.AUCEnd != nil {
			w.End = *c.AUCEnd
		} else if times := ds.Times(); len(times) > 0 {
			w.End = times[len(times)-1]
		}
	}
	return w
}

// resolveTerminalTimes parses --terminal-times, falling back to config.
func resolveTerminalTimes(flag string) ([]float64, error) {
	if strings.TrimSpace(flag) == "" {
		return settings().TerminalTimes, nil
	}
	tt, err := config.ParseFloats(flag)
	if err != nil {
		return nil, fmt.Errorf("invalid --terminal-times: %w", err)
	}
	return tt, nil
}
