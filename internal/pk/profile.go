package pk

import (
	"math"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

// The helpers below operate on a single subject profile ordered by time,
// as returned by dataset.Dataset.Profile.

// CmaxOf returns the highest concentration in the profile, or NaN when empty.
func CmaxOf(p []dataset.Observation) float64 {
	if len(p) == 0 {
		return math.NaN()
	}
	m := p[0].Conc
	for _, o := range p[1:] {
		if o.Conc > m {
			m = o.Conc
		}
	}
	return m
}

// TmaxOf returns the earliest time at which the profile reaches Cmax.
func TmaxOf(p []dataset.Observation) float64 {
	cmax := CmaxOf(p)
	for _, o := range p {
		if o.Conc == cmax {
			return o.Time
		}
	}
	return math.NaN()
}

// HalfLifeOf fits ln(conc) against time by least squares and returns
// ln2 / -slope. When terminalTimes is non-empty only observations at those
// exact times are used. Non-positive concentrations are left out of the fit.
// ok is false when fewer than two points remain or the slope is not negative.
func HalfLifeOf(p []dataset.Observation, terminalTimes []float64) (hl float64, ok bool) {
	hl, ok, _ = halfLifeFit(p, terminalTimes)
	return hl, ok
}

// halfLifeFit is HalfLifeOf that also reports how many selected points were
// dropped for a non-positive concentration.
func halfLifeFit(p []dataset.Observation, terminalTimes []float64) (hl float64, ok bool, dropped int) {
	var keep map[float64]bool
	if len(terminalTimes) > 0 {
		keep = make(map[float64]bool, len(terminalTimes))
		for _, t := range terminalTimes {
			keep[t] = true
		}
	}
	xs := make([]float64, 0, len(p))
	ys := make([]float64, 0, len(p))
	for _, o := range p {
		if keep != nil && !keep[o.Time] {
			continue
		}
		if o.Conc <= 0 {
			dropped++
			continue
		}
		xs = append(xs, o.Time)
		ys = append(ys, math.Log(o.Conc))
	}
	m := slope(xs, ys)
	if math.IsNaN(m) || m >= 0 {
		return math.NaN(), false, dropped
	}
	return math.Ln2 / -m, true, dropped
}

// slope returns the ordinary least squares slope, or NaN when it is undefined.
func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if len(xs) < 2 {
		return math.NaN()
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - mx
		sxy += dx * (ys[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return math.NaN()
	}
	return sxy / sxx
}

// AUCOf integrates concentration over [w.Start, w.End] with the trapezoidal
// rule and reports how many observations fell inside the window. Fewer than
// two points integrate to zero.
func AUCOf(p []dataset.Observation, w Window) (auc float64, points int) {
	var prev *dataset.Observation
	for i := range p {
		o := &p[i]
		if o.Time < w.Start || o.Time > w.End {
			continue
		}
		if prev != nil {
			auc += 0.5 * (prev.Conc + o.Conc) * (o.Time - prev.Time)
		}
		prev = o
		points++
	}
	return auc, points
}

// VdOf returns dose / concentration at time zero. Without a time-zero
// observation the result is NaN and ok is false.
func VdOf(p []dataset.Observation) (vd float64, ok bool) {
	for _, o := range p {
		if o.Time == 0 {
			return o.Dose / o.Conc, true
		}
	}
	return math.NaN(), false
}

// BolusDose returns the first nonzero dose in the profile.
func BolusDose(p []dataset.Observation) (float64, bool) {
	for _, o := range p {
		if o.Dose != 0 {
			return o.Dose, true
		}
	}
	return 0, false
}

func hasTimeZero(p []dataset.Observation) bool {
	for _, o := range p {
		if o.Time == 0 {
			return true
		}
	}
	return false
}
