// Package summary computes cross-subject descriptive statistics, both over
// a vector of per-subject metric values and per observation time.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

// Statistic names one member of the fixed statistic set.
type Statistic string

const (
	Mean   Statistic = "mean"
	SD     Statistic = "sd"
	Min    Statistic = "min"
	Max    Statistic = "max"
	Q1     Statistic = "Q1"
	Median Statistic = "median"
	Q3     Statistic = "Q3"
	IQR    Statistic = "IQR"
)

var allStatistics = [...]Statistic{Mean, SD, Min, Max, Q1, Median, Q3, IQR}

// AllStatistics returns the supported statistics in reporting order.
// The returned slice is a fresh copy.
func AllStatistics() []Statistic {
	out := make([]Statistic, len(allStatistics))
	copy(out, allStatistics[:])
	return out
}

func validNames() string {
	names := make([]string, len(allStatistics))
	for i, s := range allStatistics {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// UnsupportedStatisticError is returned for a statistic name outside the fixed set.
type UnsupportedStatisticError struct {
	Name string
}

func (e *UnsupportedStatisticError) Error() string {
	return fmt.Sprintf("unsupported statistic %q: valid statistics are %s", e.Name, validNames())
}

func (e *UnsupportedStatisticError) Is(target error) bool { return target == dataset.ErrValidation }

// ParseStatistics resolves names to statistics. Matching is exact except that
// surrounding whitespace is ignored; an empty list selects every statistic.
func ParseStatistics(names []string) ([]Statistic, error) {
	if len(names) == 0 {
		return AllStatistics(), nil
	}
	out := make([]Statistic, 0, len(names))
	for _, n := range names {
		s := Statistic(strings.TrimSpace(n))
		if !s.valid() {
			return nil, &UnsupportedStatisticError{Name: n}
		}
		out = append(out, s)
	}
	return out, nil
}

func (s Statistic) valid() bool {
	for _, v := range allStatistics {
		if s == v {
			return true
		}
	}
	return false
}

// Entry is one named statistic value.
type Entry struct {
	Name  Statistic `json:"name" yaml:"name"`
	Value float64   `json:"value" yaml:"value"`
}

// Record holds requested statistics in reporting order.
type Record []Entry

// Get returns the value for name and whether it was computed.
func (r Record) Get(name Statistic) (float64, bool) {
	for _, e := range r {
		if e.Name == name {
			return e.Value, true
		}
	}
	return math.NaN(), false
}

// Statistics computes the requested statistics over values. With nothing
// requested all eight are returned. NaN values are skipped. Empty input
// yields NaN for every statistic; sd is NaN for fewer than two values.
func Statistics(values []float64, requested ...Statistic) (Record, error) {
	want := make(map[Statistic]bool, len(allStatistics))
	if len(requested) == 0 {
		requested = allStatistics[:]
	}
	for _, s := range requested {
		if !s.valid() {
			return nil, &UnsupportedStatisticError{Name: string(s)}
		}
		want[s] = true
	}

	all := compute(values)
	rec := make(Record, 0, len(want))
	for _, s := range allStatistics {
		if want[s] {
			rec = append(rec, Entry{Name: s, Value: all[s]})
		}
	}
	return rec, nil
}

func compute(raw []float64) map[Statistic]float64 {
	values := make([]float64, 0, len(raw))
	for _, v := range raw {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	out := make(map[Statistic]float64, len(allStatistics))
	if len(values) == 0 {
		for _, s := range allStatistics {
			out[s] = math.NaN()
		}
		return out
	}
	data := stats.Float64Data(values)
	out[Mean] = must(stats.Mean(data))
	out[SD] = math.NaN()
	if len(values) > 1 {
		out[SD] = must(stats.StandardDeviationSample(data))
	}
	out[Min] = must(stats.Min(data))
	out[Max] = must(stats.Max(data))
	out[Median] = must(stats.Median(data))

	sorted := values
	sort.Float64s(sorted)
	out[Q1] = quantile(sorted, 0.25)
	out[Q3] = quantile(sorted, 0.75)
	out[IQR] = out[Q3] - out[Q1]
	return out
}

// must drops the error of a stats call whose only failure mode is empty input.
func must(v float64, err error) float64 {
	if err != nil {
		return math.NaN()
	}
	return v
}

// quantile uses linear interpolation between the closest ranks of sorted data.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
