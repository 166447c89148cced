// Package synth generates synthetic one-compartment IV-bolus datasets.
package synth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

// Noise is multiplicative, drawn from N(1, NoiseSD) and clamped to
// [NoiseMin, NoiseMax].
const (
	NoiseSD  = 0.05
	NoiseMin = 0.9
	NoiseMax = 1.1
)

// DefaultMaxRows caps Subjects × len(Times) when Config.MaxRows is unset.
const DefaultMaxRows = 1 << 20

// Config describes a dataset to generate.
type Config struct {
	Subjects int       `json:"subjects" yaml:"subjects"`
	Times    []float64 `json:"times" yaml:"times"`
	// Doses must hold exactly one value; it is given at the first time
	// point and zero-padded over the rest of the grid.
	Doses    []float64 `json:"doses" yaml:"doses"`
	HalfLife float64   `json:"half_life" yaml:"half_life"`
	// MaxRows bounds the generated row count; 0 means DefaultMaxRows.
	MaxRows int `json:"-" yaml:"-"`
}

// ConfigError reports an invalid generator configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("generator config: %s: %s", e.Field, e.Msg) }

func (e *ConfigError) Is(target error) bool { return target == dataset.ErrValidation }

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Subjects < 1 {
		return &ConfigError{Field: "subjects", Msg: fmt.Sprintf("must be a positive integer, got %d", c.Subjects)}
	}
	if len(c.Times) == 0 {
		return &ConfigError{Field: "times", Msg: "at least one sampling time is required"}
	}
	for i, t := range c.Times {
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return &ConfigError{Field: "times", Msg: fmt.Sprintf("time %g must be a non-negative number", t)}
		}
		if i > 0 && t <= c.Times[i-1] {
			return &ConfigError{Field: "times", Msg: "sampling times must be strictly increasing"}
		}
	}
	limit := c.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	// division keeps the product from overflowing
	if c.Subjects > limit/len(c.Times) {
		return &ConfigError{Field: "subjects", Msg: fmt.Sprintf("%d subjects × %d times exceeds the limit of %d rows", c.Subjects, len(c.Times), limit)}
	}
	if len(c.Doses) != 1 {
		return &ConfigError{Field: "dose", Msg: fmt.Sprintf("only a single dose can be entered; %d provided", len(c.Doses))}
	}
	if d := c.Doses[0]; math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return &ConfigError{Field: "dose", Msg: fmt.Sprintf("dose %g must be a non-negative number", d)}
	}
	if math.IsNaN(c.HalfLife) || math.IsInf(c.HalfLife, 0) || c.HalfLife <= 0 {
		return &ConfigError{Field: "half_life", Msg: fmt.Sprintf("must be positive, got %g", c.HalfLife)}
	}
	return nil
}

// Row is one generated observation plus the noise-free trend at its time.
type Row struct {
	Subject int     `json:"subject_id" yaml:"subject_id"`
	Time    float64 `json:"time" yaml:"time"`
	Dose    float64 `json:"dose" yaml:"dose"`
	Trend   float64 `json:"trend" yaml:"trend"`
	Conc    float64 `json:"concentration" yaml:"concentration"`
}

// Result is a generated dataset. Rows are ordered by subject, then time.
type Result struct {
	Config Config `json:"config" yaml:"config"`
	// Trend is the smooth concentration curve over Config.Times.
	Trend []float64 `json:"trend" yaml:"trend"`
	Rows  []Row     `json:"rows" yaml:"rows"`
}

// NewRand returns a seeded generator suitable for Generate.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate builds cfg.Subjects profiles following C(t) = dose * exp(-ln2/t½ * t)
// with bounded multiplicative noise. Each subject's concentrations never
// increase over time. All randomness comes from rng.
func Generate(cfg Config, rng *rand.Rand) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("generate: nil random source")
	}
	dose := cfg.Doses[0]
	k := math.Ln2 / cfg.HalfLife
	trend := make([]float64, len(cfg.Times))
	for i, t := range cfg.Times {
		trend[i] = dose * math.Exp(-k*t)
	}
	doses := make([]float64, len(cfg.Times))
	doses[0] = dose

	res := &Result{Config: cfg, Trend: trend, Rows: make([]Row, 0, cfg.Subjects*len(cfg.Times))}
	for id := 1; id <= cfg.Subjects; id++ {
		prev := math.Inf(1)
		for i, t := range cfg.Times {
			noisy := round2(trend[i] * noise(rng))
			conc := math.Min(prev, noisy)
			prev = conc
			res.Rows = append(res.Rows, Row{
				Subject: id,
				Time:    t,
				Dose:    doses[i],
				Trend:   round2(trend[i]),
				Conc:    conc,
			})
		}
	}
	return res, nil
}

func noise(rng *rand.Rand) float64 {
	v := 1 + NoiseSD*rng.NormFloat64()
	return math.Max(NoiseMin, math.Min(NoiseMax, v))
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Observations converts the generated rows to dataset observations.
func (r *Result) Observations() []dataset.Observation {
	out := make([]dataset.Observation, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = dataset.Observation{Subject: row.Subject, Time: row.Time, Dose: row.Dose, Conc: row.Conc}
	}
	return out
}

// Dataset validates the generated rows as a Dataset.
func (r *Result) Dataset() (*dataset.Dataset, error) {
	return dataset.New(r.Observations())
}

// WriteCSV writes rows with the ID,TIME,DOSE,TREND,CONC header.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "TIME", "DOSE", "TREND", "CONC"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Subject),
			dataset.FormatFloat(r.Time),
			dataset.FormatFloat(r.Dose),
			dataset.FormatFloat(r.Trend),
			dataset.FormatFloat(r.Conc),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
