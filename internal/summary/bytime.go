package summary

import (
	"sort"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

// TimeRow summarizes every concentration observed at one time value.
type TimeRow struct {
	Time   float64 `json:"time" yaml:"time"`
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	SD     float64 `json:"sd" yaml:"sd"`
	Median float64 `json:"median" yaml:"median"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// ByTime groups observations by exact time value and returns one row per
// distinct time, ascending.
func ByTime(ds *dataset.Dataset) []TimeRow {
	groups := make(map[float64][]float64)
	for _, o := range ds.Observations() {
		groups[o.Time] = append(groups[o.Time], o.Conc)
	}
	rows := make([]TimeRow, 0, len(groups))
	for t, conc := range groups {
		all := compute(conc)
		rows = append(rows, TimeRow{
			Time:   t,
			Count:  len(conc),
			Mean:   all[Mean],
			SD:     all[SD],
			Median: all[Median],
			Min:    all[Min],
			Max:    all[Max],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
	return rows
}
