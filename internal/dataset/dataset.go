package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/nca-cli/internal/parser"
)

// Observation is one concentration measurement for one subject.
type Observation struct {
	Subject int     `json:"subject_id" yaml:"subject_id"`
	Time    float64 `json:"time" yaml:"time"`
	Dose    float64 `json:"dose" yaml:"dose"`
	Conc    float64 `json:"concentration" yaml:"concentration"`
}

// Dataset is a validated, read-only set of observations grouped into
// per-subject profiles. It is safe for concurrent readers.
type Dataset struct {
	obs      []Observation
	subjects []int
	profiles map[int][]Observation
}

// Accepted header names per canonical column, matched case-insensitively.
var (
	SubjectColumns = []string{"ID", "subject_id", "subject"}
	TimeColumns    = []string{"TIME", "time"}
	DoseColumns    = []string{"DOSE", "dose"}
	ConcColumns    = []string{"CONC", "concentration", "conc"}
)

// FromTable coerces a raw table into a validated Dataset. Extra columns
// (for example a generator's TREND column) are ignored.
func FromTable(t *parser.Table) (*Dataset, error) {
	if t == nil {
		return nil, &ValidationError{Field: "table", Msg: "no data"}
	}
	cols := [4]int{}
	for i, names := range [][]string{SubjectColumns, TimeColumns, DoseColumns, ConcColumns} {
		cols[i] = t.Column(names...)
		if cols[i] < 0 {
			return nil, &ValidationError{
				Field: "header",
				Msg:   fmt.Sprintf("missing column %s (accepted: %s)", names[0], strings.Join(names, ", ")),
			}
		}
	}
	obs := make([]Observation, 0, len(t.Rows))
	for r := range t.Rows {
		row := r + 1
		id, err := coerceInt(t, row, cols[0], "subject_id")
		if err != nil {
			return nil, err
		}
		var vals [3]float64
		for k, name := range []string{"time", "dose", "concentration"} {
			v, err := coerceReal(t, row, cols[k+1], name)
			if err != nil {
				return nil, err
			}
			vals[k] = v
		}
		obs = append(obs, Observation{Subject: id, Time: vals[0], Dose: vals[1], Conc: vals[2]})
	}
	return New(obs)
}

func coerceInt(t *parser.Table, row, col int, name string) (int, error) {
	raw := t.Cell(row-1, col)
	if raw == "" {
		return 0, &ValidationError{Row: row, Field: name, Msg: "missing value"}
	}
	v, ok := t.ParseNumber(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, &TypeConversionError{Row: row, Column: name, Value: raw, Want: "integer"}
	}
	return int(v), nil
}

func coerceReal(t *parser.Table, row, col int, name string) (float64, error) {
	raw := t.Cell(row-1, col)
	if raw == "" {
		return 0, &ValidationError{Row: row, Field: name, Msg: "missing value"}
	}
	v, ok := t.ParseNumber(raw)
	if !ok {
		return 0, &TypeConversionError{Row: row, Column: name, Value: raw, Want: "real"}
	}
	return v, nil
}

// New validates observations and builds the per-subject index.
func New(obs []Observation) (*Dataset, error) {
	d := &Dataset{
		obs:      make([]Observation, len(obs)),
		profiles: make(map[int][]Observation),
	}
	copy(d.obs, obs)
	for i, o := range d.obs {
		if err := validate(i+1, o); err != nil {
			return nil, err
		}
		if _, ok := d.profiles[o.Subject]; !ok {
			d.subjects = append(d.subjects, o.Subject)
		}
		d.profiles[o.Subject] = append(d.profiles[o.Subject], o)
	}
	sort.Ints(d.subjects)
	for _, p := range d.profiles {
		sort.SliceStable(p, func(i, j int) bool { return p[i].Time < p[j].Time })
	}
	return d, nil
}

func validate(row int, o Observation) error {
	if o.Subject < 1 {
		return &ValidationError{Row: row, Field: "subject_id", Msg: fmt.Sprintf("must be >= 1, got %d", o.Subject)}
	}
	checks := []struct {
		name string
		v    float64
	}{{"time", o.Time}, {"dose", o.Dose}, {"concentration", o.Conc}}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return &ValidationError{Row: row, Field: c.name, Msg: "missing or non-finite value"}
		}
		if c.v < 0 {
			return &ValidationError{Row: row, Field: c.name, Msg: fmt.Sprintf("must be >= 0, got %g", c.v)}
		}
	}
	return nil
}

// Subjects returns the distinct subject ids in ascending order.
func (d *Dataset) Subjects() []int {
	out := make([]int, len(d.subjects))
	copy(out, d.subjects)
	return out
}

// Profile returns the subject's observations ordered by time, or nil.
func (d *Dataset) Profile(subject int) []Observation {
	p, ok := d.profiles[subject]
	if !ok {
		return nil
	}
	out := make([]Observation, len(p))
	copy(out, p)
	return out
}

// Observations returns all observations in input order.
func (d *Dataset) Observations() []Observation {
	out := make([]Observation, len(d.obs))
	copy(out, d.obs)
	return out
}

// Len returns the number of observations.
func (d *Dataset) Len() int { return len(d.obs) }

// Times returns the distinct observation times in ascending order.
func (d *Dataset) Times() []float64 {
	seen := make(map[float64]struct{}, len(d.obs))
	var out []float64
	for _, o := range d.obs {
		if _, ok := seen[o.Time]; ok {
			continue
		}
		seen[o.Time] = struct{}{}
		out = append(out, o.Time)
	}
	sort.Float64s(out)
	return out
}
