package summary

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/nca-cli/internal/dataset"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStatisticsSingleton(t *testing.T) {
	rec, err := Statistics([]float64{4.2})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(rec) != 8 {
		t.Fatalf("expected all eight statistics, got %d", len(rec))
	}
	for _, s := range []Statistic{Mean, Median, Min, Max, Q1, Q3} {
		if v, _ := rec.Get(s); !approx(v, 4.2) {
			t.Errorf("%s = %v, want 4.2", s, v)
		}
	}
	if v, _ := rec.Get(IQR); v != 0 {
		t.Errorf("IQR = %v, want 0", v)
	}
	if v, _ := rec.Get(SD); !math.IsNaN(v) {
		t.Errorf("sd = %v, want NaN", v)
	}
}

func TestStatisticsValues(t *testing.T) {
	rec, err := Statistics([]float64{4, 1, 3, 2})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	want := map[Statistic]float64{
		Mean:   2.5,
		SD:     math.Sqrt(5.0 / 3.0),
		Min:    1,
		Max:    4,
		Q1:     1.75,
		Median: 2.5,
		Q3:     3.25,
		IQR:    1.5,
	}
	for s, w := range want {
		if v, ok := rec.Get(s); !ok || !approx(v, w) {
			t.Errorf("%s = %v, want %v", s, v, w)
		}
	}
	for i, s := range AllStatistics() {
		if rec[i].Name != s {
			t.Fatalf("order: rec[%d] = %s, want %s", i, rec[i].Name, s)
		}
	}
}

func TestStatisticsSubsetKeepsFixedOrder(t *testing.T) {
	rec, err := Statistics([]float64{1, 2, 3}, Median, Mean, Mean)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(rec) != 2 || rec[0].Name != Mean || rec[1].Name != Median {
		t.Fatalf("rec = %+v", rec)
	}
	if _, ok := rec.Get(SD); ok {
		t.Fatalf("sd should not be present")
	}
}

func TestStatisticsEmptyAndNaN(t *testing.T) {
	rec, err := Statistics(nil)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	for _, e := range rec {
		if !math.IsNaN(e.Value) {
			t.Errorf("%s = %v, want NaN", e.Name, e.Value)
		}
	}
	rec, _ = Statistics([]float64{math.NaN(), 2, 4}, Mean)
	if v, _ := rec.Get(Mean); v != 3 {
		t.Fatalf("NaN should be skipped, mean = %v", v)
	}
}

func TestUnsupportedStatistic(t *testing.T) {
	_, err := Statistics([]float64{1}, "bogus")
	var use *UnsupportedStatisticError
	if !errors.As(err, &use) || use.Name != "bogus" {
		t.Fatalf("expected UnsupportedStatisticError, got %v", err)
	}
	if !errors.Is(err, dataset.ErrValidation) {
		t.Fatalf("expected ErrValidation match")
	}
	msg := err.Error()
	for _, s := range AllStatistics() {
		if !strings.Contains(msg, string(s)) {
			t.Errorf("message %q does not list %s", msg, s)
		}
	}
	if !strings.Contains(msg, `"bogus"`) {
		t.Errorf("message %q does not name the input", msg)
	}
}

func TestParseStatistics(t *testing.T) {
	got, err := ParseStatistics(nil)
	if err != nil || len(got) != 8 {
		t.Fatalf("ParseStatistics(nil) = %v, %v", got, err)
	}
	got, err = ParseStatistics([]string{" Q1", "IQR"})
	if err != nil || len(got) != 2 || got[0] != Q1 || got[1] != IQR {
		t.Fatalf("ParseStatistics = %v, %v", got, err)
	}
	if _, err := ParseStatistics([]string{"std"}); err == nil {
		t.Fatalf("expected error for std")
	}
}

func TestByTime(t *testing.T) {
	ds, err := dataset.New([]dataset.Observation{
		{Subject: 1, Time: 0, Dose: 100, Conc: 10},
		{Subject: 2, Time: 0, Dose: 100, Conc: 12},
		{Subject: 1, Time: 1, Conc: 5},
		{Subject: 2, Time: 1, Conc: 7},
		{Subject: 3, Time: 1, Conc: 6},
		{Subject: 3, Time: 2.5, Conc: 1},
	})
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	rows := ByTime(ds)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Time != 0 || rows[0].Count != 2 || rows[0].Mean != 11 || rows[0].Min != 10 || rows[0].Max != 12 {
		t.Fatalf("row0 = %+v", rows[0])
	}
	if rows[1].Count != 3 || rows[1].Median != 6 || !approx(rows[1].SD, 1) {
		t.Fatalf("row1 = %+v", rows[1])
	}
	if rows[2].Time != 2.5 || rows[2].Count != 1 || !math.IsNaN(rows[2].SD) {
		t.Fatalf("row2 = %+v", rows[2])
	}
}
