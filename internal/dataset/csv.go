package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes observations with the canonical ID,TIME,DOSE,CONC header.
func WriteCSV(w io.Writer, obs []Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "TIME", "DOSE", "CONC"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, o := range obs {
		rec := []string{strconv.Itoa(o.Subject), FormatFloat(o.Time), FormatFloat(o.Dose), FormatFloat(o.Conc)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatFloat renders v in the shortest form that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
