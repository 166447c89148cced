// Package report composes the summary table and PK metrics into one ordered
// report and streams it to a Sink.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// SummaryLabel labels the per-time summary section.
const SummaryLabel = "Summary of PK data"

// Params are the caller-supplied analysis settings.
type Params struct {
	Window        pk.Window           `json:"window" yaml:"window"`
	TerminalTimes []float64           `json:"terminal_times,omitempty" yaml:"terminal_times,omitempty"`
	Stats         []summary.Statistic `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// Section is one labelled block of the report: either the per-time table or
// a metric with its statistics and per-subject values.
type Section struct {
	Label    string            `json:"label" yaml:"label"`
	Table    []summary.TimeRow `json:"table,omitempty" yaml:"table,omitempty"`
	Stats    summary.Record    `json:"stats,omitempty" yaml:"stats,omitempty"`
	Values   []pk.SubjectValue `json:"values,omitempty" yaml:"values,omitempty"`
	Excluded []pk.Exclusion    `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Notes    []string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Series is one subject's concentration-time curve.
type Series struct {
	Subject int       `json:"subject_id" yaml:"subject_id"`
	Time    []float64 `json:"time" yaml:"time"`
	Conc    []float64 `json:"concentration" yaml:"concentration"`
}

// PlotData is what a plotting consumer needs: individual curves plus the
// per-time summary.
type PlotData struct {
	Series  []Series          `json:"series" yaml:"series"`
	Summary []summary.TimeRow `json:"summary" yaml:"summary"`
}

// Report is the ordered result of a full analysis.
type Report struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Params    Params    `json:"params" yaml:"params"`
	Sections  []Section `json:"sections" yaml:"sections"`
	Plot      *PlotData `json:"plot,omitempty" yaml:"plot,omitempty"`
}

// NewPlotData extracts plotting series from a dataset.
func NewPlotData(ds *dataset.Dataset) *PlotData {
	pd := &PlotData{Summary: summary.ByTime(ds)}
	for _, id := range ds.Subjects() {
		p := ds.Profile(id)
		s := Series{Subject: id, Time: make([]float64, len(p)), Conc: make([]float64, len(p))}
		for i, o := range p {
			s.Time[i] = o.Time
			s.Conc[i] = o.Conc
		}
		pd.Series = append(pd.Series, s)
	}
	return pd
}

// Build runs every analysis in fixed order: summary table, Cmax, Tmax,
// t1/2, AUC over the window, Vd, CL. The first failing step aborts the build
// and its error is returned unchanged.
func Build(ctx context.Context, eng *pk.Engine, name string, p Params) (*Report, error) {
	if err := p.Window.Validate(); err != nil {
		return nil, err
	}
	if _, err := summary.Statistics(nil, p.Stats...); err != nil {
		return nil, err
	}
	ds := eng.Dataset()
	r := &Report{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Params:    p,
	}
	r.Plot = NewPlotData(ds)
	r.Sections = append(r.Sections, Section{Label: SummaryLabel, Table: r.Plot.Summary})

	steps := []func(context.Context) (*pk.Metric, error){
		eng.Cmax,
		eng.Tmax,
		func(ctx context.Context) (*pk.Metric, error) { return eng.HalfLife(ctx, p.TerminalTimes) },
		func(ctx context.Context) (*pk.Metric, error) { return eng.AUC(ctx, p.Window) },
		eng.Vd,
		func(ctx context.Context) (*pk.Metric, error) { return eng.CL(ctx, p.Window) },
	}
	for _, step := range steps {
		m, err := step(ctx)
		if err != nil {
			return nil, err
		}
		sec, err := MetricSection(m, p.Stats)
		if err != nil {
			return nil, err
		}
		r.Sections = append(r.Sections, sec)
	}
	return r, nil
}

// MetricSection summarizes m into a report section.
func MetricSection(m *pk.Metric, stats []summary.Statistic) (Section, error) {
	rec, err := m.Summarize(stats...)
	if err != nil {
		return Section{}, fmt.Errorf("summarize %s: %w", m.Name, err)
	}
	return Section{
		Label:    m.Name,
		Stats:    rec,
		Values:   m.Values,
		Excluded: m.Excluded,
		Notes:    m.Notes,
	}, nil
}

// Section returns the section with the given label.
func (r *Report) Section(label string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Label == label {
			return s, true
		}
	}
	return Section{}, false
}

// Stream writes the report to sink section by section.
func (r *Report) Stream(sink Sink) error {
	if err := sink.Begin(r); err != nil {
		return err
	}
	for _, s := range r.Sections {
		if err := sink.WriteSection(s); err != nil {
			return fmt.Errorf("write section %s: %w", s.Label, err)
		}
	}
	return sink.End()
}
