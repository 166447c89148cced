// Package pk computes per-subject noncompartmental pharmacokinetic metrics
// and reduces them across subjects.
package pk

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// Metric names.
const (
	NameCmax     = "Cmax"
	NameTmax     = "Tmax"
	NameHalfLife = "t1/2"
	NameAUC      = "AUC"
	NameVd       = "Vd"
	NameCL       = "CL"
)

// BolusNote accompanies Vd and CL, which assume one bolus dose at time zero.
const BolusNote = "only valid for a single bolus dose given at TIME == 0"

// Options tunes an Engine.
type Options struct {
	// Strict turns precondition gaps (no time-zero observation for Vd/CL,
	// fewer than two points in an AUC window) into errors.
	Strict bool
	// Workers bounds per-subject concurrency; <= 0 uses GOMAXPROCS.
	Workers int
}

// Window is an inclusive time range.
type Window struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if w.Start > w.End {
		return &dataset.ValidationError{Field: "window", Msg: fmt.Sprintf("start %g is after end %g", w.Start, w.End)}
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", dataset.FormatFloat(w.Start), dataset.FormatFloat(w.End))
}

// SubjectValue is one subject's value for a metric.
type SubjectValue struct {
	Subject int     `json:"subject_id" yaml:"subject_id"`
	Value   float64 `json:"value" yaml:"value"`
}

// Exclusion records a subject left out of a metric and why.
type Exclusion struct {
	Subject int    `json:"subject_id" yaml:"subject_id"`
	Reason  string `json:"reason" yaml:"reason"`
}

// Metric holds per-subject values for one metric in ascending subject order.
type Metric struct {
	Name     string         `json:"name" yaml:"name"`
	Values   []SubjectValue `json:"values" yaml:"values"`
	Excluded []Exclusion    `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Notes    []string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Floats returns the per-subject values in subject order.
func (m *Metric) Floats() []float64 {
	out := make([]float64, len(m.Values))
	for i, v := range m.Values {
		out[i] = v.Value
	}
	return out
}

// Value returns the value computed for subject.
func (m *Metric) Value(subject int) (float64, bool) {
	for _, v := range m.Values {
		if v.Subject == subject {
			return v.Value, true
		}
	}
	return 0, false
}

// Summarize reduces the per-subject values across subjects.
func (m *Metric) Summarize(stats ...summary.Statistic) (summary.Record, error) {
	return summary.Statistics(m.Floats(), stats...)
}

// Engine computes metrics over a validated dataset. It holds no mutable
// state and may be shared between goroutines.
type Engine struct {
	ds   *dataset.Dataset
	opts Options
	log  zerolog.Logger
}

// NewEngine returns an engine over ds.
func NewEngine(ds *dataset.Dataset, opts Options, log zerolog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{ds: ds, opts: opts, log: log}
}

// Dataset returns the dataset the engine reads from.
func (e *Engine) Dataset() *dataset.Dataset { return e.ds }

// outcome is the per-subject result of a metric function. A non-empty
// excluded reason drops the subject from the metric; gap marks a value
// computed despite a precondition gap; note is surfaced in Metric.Notes.
type outcome struct {
	value    float64
	excluded string
	gap      string
	note     string
}

type subjectFunc func(subject int, p []dataset.Observation) (outcome, error)

// run evaluates fn for every subject concurrently and collects the results
// in subject order once all subjects have finished.
func (e *Engine) run(ctx context.Context, name string, fn subjectFunc) (*Metric, error) {
	subjects := e.ds.Subjects()
	results := make([]outcome, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, id := range subjects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(id, e.ds.Profile(id))
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", name, err)
	}

	m := &Metric{Name: name, Values: make([]SubjectValue, 0, len(subjects))}
	for i, id := range subjects {
		r := results[i]
		if r.note != "" {
			m.Notes = append(m.Notes, fmt.Sprintf("subject %d: %s", id, r.note))
			e.log.Warn().Str("metric", name).Int("subject", id).Str("note", r.note).Msg("subject note")
		}
		if r.excluded != "" {
			m.Excluded = append(m.Excluded, Exclusion{Subject: id, Reason: r.excluded})
			e.log.Warn().Str("metric", name).Int("subject", id).Str("reason", r.excluded).Msg("subject excluded")
			continue
		}
		if r.gap != "" {
			e.log.Warn().Str("metric", name).Int("subject", id).Str("gap", r.gap).Msg("precondition gap")
		}
		m.Values = append(m.Values, SubjectValue{Subject: id, Value: r.value})
	}
	e.log.Debug().Str("metric", name).Int("subjects", len(m.Values)).Int("excluded", len(m.Excluded)).Msg("metric computed")
	return m, nil
}

// Cmax computes the maximum observed concentration per subject.
func (e *Engine) Cmax(ctx context.Context) (*Metric, error) {
	return e.run(ctx, NameCmax, func(_ int, p []dataset.Observation) (outcome, error) {
		return outcome{value: CmaxOf(p)}, nil
	})
}

// Tmax computes the earliest time of maximum concentration per subject.
func (e *Engine) Tmax(ctx context.Context) (*Metric, error) {
	return e.run(ctx, NameTmax, func(_ int, p []dataset.Observation) (outcome, error) {
		return outcome{value: TmaxOf(p)}, nil
	})
}

// HalfLife estimates the terminal half-life per subject. Subjects whose
// log-linear slope is not negative are excluded rather than reported as errors.
func (e *Engine) HalfLife(ctx context.Context, terminalTimes []float64) (*Metric, error) {
	return e.run(ctx, NameHalfLife, func(_ int, p []dataset.Observation) (outcome, error) {
		hl, ok, dropped := halfLifeFit(p, terminalTimes)
		var note string
		if dropped > 0 {
			note = fmt.Sprintf("%d non-positive concentration(s) left out of the log-linear fit", dropped)
		}
		if !ok {
			return outcome{excluded: "terminal slope is not negative or fewer than two points", note: note}, nil
		}
		return outcome{value: hl, note: note}, nil
	})
}

// AUC integrates each subject's profile over w.
func (e *Engine) AUC(ctx context.Context, w Window) (*Metric, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	m, err := e.run(ctx, NameAUC, func(id int, p []dataset.Observation) (outcome, error) {
		return e.aucOutcome(id, p, w, NameAUC)
	})
	if err != nil {
		return nil, err
	}
	m.Name = fmt.Sprintf("%s(%s)", NameAUC, w)
	return m, nil
}

func (e *Engine) aucOutcome(id int, p []dataset.Observation, w Window, metric string) (outcome, error) {
	auc, n := AUCOf(p, w)
	if n >= 2 {
		return outcome{value: auc}, nil
	}
	reason := fmt.Sprintf("%d point(s) in window %s", n, w)
	if e.opts.Strict {
		return outcome{}, &PreconditionError{Metric: metric, Subject: id, Reason: reason}
	}
	return outcome{value: auc, gap: reason}, nil
}

// Vd computes dose / C(0) per subject. Without a time-zero observation the
// value is NaN, or an error in strict mode.
func (e *Engine) Vd(ctx context.Context) (*Metric, error) {
	m, err := e.run(ctx, NameVd, func(id int, p []dataset.Observation) (outcome, error) {
		vd, ok := VdOf(p)
		if ok {
			return outcome{value: vd}, nil
		}
		if e.opts.Strict {
			return outcome{}, &PreconditionError{Metric: NameVd, Subject: id, Reason: "no observation at time 0"}
		}
		return outcome{value: vd, gap: "no observation at time 0"}, nil
	})
	if err != nil {
		return nil, err
	}
	m.Notes = append(m.Notes, BolusNote)
	return m, nil
}

// CL computes dose / AUC(w) for subjects with a nonzero dose, pairing each
// subject's dose with its own AUC.
func (e *Engine) CL(ctx context.Context, w Window) (*Metric, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	m, err := e.run(ctx, NameCL, func(id int, p []dataset.Observation) (outcome, error) {
		dose, ok := BolusDose(p)
		if !ok {
			return outcome{excluded: "no nonzero dose"}, nil
		}
		if e.opts.Strict && !hasTimeZero(p) {
			return outcome{}, &PreconditionError{Metric: NameCL, Subject: id, Reason: "no observation at time 0"}
		}
		auc, err := e.aucOutcome(id, p, w, NameCL)
		if err != nil {
			return outcome{}, err
		}
		return outcome{value: dose / auc.value, gap: auc.gap}, nil
	})
	if err != nil {
		return nil, err
	}
	m.Notes = append(m.Notes, BolusNote)
	return m, nil
}
