package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// Sink receives a report one section at a time.
type Sink interface {
	Begin(r *Report) error
	WriteSection(s Section) error
	End() error
}

// Formats accepted by NewSink.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// ErrUnknownFormat is returned by NewSink for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// NewSink returns a sink rendering the given format to w.
func NewSink(format string, w io.Writer) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText, "txt":
		return &textSink{w: w}, nil
	case FormatMarkdown, "md":
		return &markdownSink{w: w}, nil
	case FormatJSON:
		return &jsonSink{w: w}, nil
	case FormatYAML, "yml":
		return &yamlSink{w: w}, nil
	}
	return nil, fmt.Errorf("%w: %q (want text, markdown, json or yaml)", ErrUnknownFormat, format)
}

// Extension returns the file extension used for a format.
func Extension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md":
		return ".md"
	case FormatJSON:
		return ".json"
	case FormatYAML, "yml":
		return ".yaml"
	}
	return ".txt"
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func statHeader(rec summary.Record) []string {
	out := make([]string, len(rec))
	for i, e := range rec {
		out[i] = string(e.Name)
	}
	return out
}

func statValues(rec summary.Record) []string {
	out := make([]string, len(rec))
	for i, e := range rec {
		out[i] = num(e.Value)
	}
	return out
}

var timeHeader = []string{"TIME", "count", "mean", "sd", "median", "min", "max"}

func timeCells(r summary.TimeRow) []string {
	return []string{dataset.FormatFloat(r.Time), strconv.Itoa(r.Count), num(r.Mean), num(r.SD), num(r.Median), num(r.Min), num(r.Max)}
}

func excludedIDs(s Section) string {
	ids := make([]string, len(s.Excluded))
	for i, e := range s.Excluded {
		ids[i] = strconv.Itoa(e.Subject)
	}
	return strings.Join(ids, ", ")
}

// textSink renders aligned plain-text tables.
type textSink struct {
	w io.Writer
}

func (t *textSink) Begin(r *Report) error {
	if r.Name != "" {
		_, err := fmt.Fprintf(t.w, "NCA report: %s\n\n", r.Name)
		return err
	}
	return nil
}

func (t *textSink) WriteSection(s Section) error {
	if _, err := fmt.Fprintf(t.w, "%s:\n", s.Label); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	if s.Table != nil {
		fmt.Fprintln(tw, strings.Join(timeHeader, "\t")+"\t")
		for _, r := range s.Table {
			fmt.Fprintln(tw, strings.Join(timeCells(r), "\t")+"\t")
		}
	} else {
		fmt.Fprintln(tw, strings.Join(statHeader(s.Stats), "\t")+"\t")
		fmt.Fprintln(tw, strings.Join(statValues(s.Stats), "\t")+"\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(s.Excluded) > 0 {
		fmt.Fprintf(t.w, "excluded subjects (%d): %s\n", len(s.Excluded), excludedIDs(s))
	}
	for _, n := range s.Notes {
		fmt.Fprintf(t.w, "NB: %s\n", n)
	}
	_, err := fmt.Fprint(t.w, "\n\n")
	return err
}

func (t *textSink) End() error { return nil }

// markdownSink renders pipe tables under bracketed section headings.
type markdownSink struct {
	w io.Writer
}

func (m *markdownSink) Begin(r *Report) error {
	var b strings.Builder
	b.WriteString("[NCA REPORT]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("Dataset: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("AUC window: %s\n", r.Params.Window))
	if len(r.Params.TerminalTimes) > 0 {
		parts := make([]string, len(r.Params.TerminalTimes))
		for i, v := range r.Params.TerminalTimes {
			parts[i] = dataset.FormatFloat(v)
		}
		b.WriteString(fmt.Sprintf("Terminal times: %s\n", strings.Join(parts, ", ")))
	}
	b.WriteString("\n")
	_, err := io.WriteString(m.w, b.String())
	return err
}

func (m *markdownSink) WriteSection(s Section) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s]\n", strings.ToUpper(s.Label)))
	if s.Table != nil {
		writePipeRow(&b, timeHeader)
		writePipeRule(&b, len(timeHeader))
		for _, r := range s.Table {
			writePipeRow(&b, timeCells(r))
		}
	} else {
		writePipeRow(&b, statHeader(s.Stats))
		writePipeRule(&b, len(s.Stats))
		writePipeRow(&b, statValues(s.Stats))
	}
	if len(s.Excluded) > 0 {
		b.WriteString(fmt.Sprintf("\nExcluded subjects (%d): %s\n", len(s.Excluded), excludedIDs(s)))
	}
	for _, n := range s.Notes {
		b.WriteString(fmt.Sprintf("\n> NB: %s\n", n))
	}
	b.WriteString("\n")
	_, err := io.WriteString(m.w, b.String())
	return err
}

func (m *markdownSink) End() error { return nil }

func writePipeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func writePipeRule(b *strings.Builder, n int) {
	b.WriteString("|")
	b.WriteString(strings.Repeat("---|", n))
	b.WriteString("\n")
}
