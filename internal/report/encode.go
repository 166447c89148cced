package report

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// JSON cannot carry NaN or ±Inf, so JSON documents use nullable numbers.
// YAML keeps the report types as they are (.nan, .inf).

// Number is a float that encodes as null when it is not finite.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// StatDoc is one named statistic.
type StatDoc struct {
	Name  string `json:"name"`
	Value Number `json:"value"`
}

// ValueDoc is one subject's metric value.
type ValueDoc struct {
	Subject int    `json:"subject_id"`
	Value   Number `json:"value"`
}

// TimeRowDoc is the JSON form of summary.TimeRow.
type TimeRowDoc struct {
	Time   float64 `json:"time"`
	Count  int     `json:"count"`
	Mean   Number  `json:"mean"`
	SD     Number  `json:"sd"`
	Median Number  `json:"median"`
	Min    Number  `json:"min"`
	Max    Number  `json:"max"`
}

// SectionDoc is the JSON form of a Section.
type SectionDoc struct {
	Label    string         `json:"label"`
	Table    []TimeRowDoc   `json:"table,omitempty"`
	Stats    []StatDoc      `json:"stats,omitempty"`
	Values   []ValueDoc     `json:"values,omitempty"`
	Excluded []pk.Exclusion `json:"excluded,omitempty"`
	Notes    []string       `json:"notes,omitempty"`
}

// PlotDoc is the JSON form of PlotData.
type PlotDoc struct {
	Series  []Series     `json:"series"`
	Summary []TimeRowDoc `json:"summary"`
}

// Document is the JSON form of a Report.
type Document struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	Params    Params       `json:"params"`
	Sections  []SectionDoc `json:"sections"`
	Plot      *PlotDoc     `json:"plot,omitempty"`
}

// NewSectionDoc converts a section for JSON encoding.
func NewSectionDoc(s Section) SectionDoc {
	d := SectionDoc{Label: s.Label, Table: TimeRowDocs(s.Table), Excluded: s.Excluded, Notes: s.Notes}
	for _, e := range s.Stats {
		d.Stats = append(d.Stats, StatDoc{Name: string(e.Name), Value: Number(e.Value)})
	}
	for _, v := range s.Values {
		d.Values = append(d.Values, ValueDoc{Subject: v.Subject, Value: Number(v.Value)})
	}
	return d
}

// TimeRowDocs converts summary rows for JSON encoding.
func TimeRowDocs(rows []summary.TimeRow) []TimeRowDoc {
	if rows == nil {
		return nil
	}
	out := make([]TimeRowDoc, len(rows))
	for i, r := range rows {
		out[i] = TimeRowDoc{
			Time:   r.Time,
			Count:  r.Count,
			Mean:   Number(r.Mean),
			SD:     Number(r.SD),
			Median: Number(r.Median),
			Min:    Number(r.Min),
			Max:    Number(r.Max),
		}
	}
	return out
}

// NewPlotDoc converts plot data for JSON encoding.
func NewPlotDoc(p *PlotData) *PlotDoc {
	if p == nil {
		return nil
	}
	return &PlotDoc{Series: p.Series, Summary: TimeRowDocs(p.Summary)}
}

// jsonSink buffers sections and writes one indented document on End.
type jsonSink struct {
	w   io.Writer
	doc Document
}

func (j *jsonSink) Begin(r *Report) error {
	j.doc = Document{
		ID:        r.ID.String(),
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		Params:    r.Params,
		Plot:      NewPlotDoc(r.Plot),
	}
	return nil
}

func (j *jsonSink) WriteSection(s Section) error {
	j.doc.Sections = append(j.doc.Sections, NewSectionDoc(s))
	return nil
}

func (j *jsonSink) End() error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(j.doc)
}

// yamlSink buffers sections and writes one YAML document on End.
type yamlSink struct {
	w      io.Writer
	report Report
}

func (y *yamlSink) Begin(r *Report) error {
	y.report = *r
	y.report.Sections = nil
	return nil
}

func (y *yamlSink) WriteSection(s Section) error {
	y.report.Sections = append(y.report.Sections, s)
	return nil
}

func (y *yamlSink) End() error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(&y.report); err != nil {
		return err
	}
	return enc.Close()
}
