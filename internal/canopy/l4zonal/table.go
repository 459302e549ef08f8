package l4zonal

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
)

// Table is a zone-by-statistic view of a Result that works for any zone spec.
type Table struct {
	ZoneIDs []string
	Count   []int
	Columns []string    // layer names, sorted
	Values  [][]float64 // Values[column][zone]
}

// Table returns the result as rows of zones.
func (r *Result) Table() *Table {
	n := r.Zones.NumZones()
	t := &Table{
		ZoneIDs: make([]string, n),
		Count:   append([]int(nil), r.Count...),
		Columns: make([]string, len(r.Layers)),
		Values:  make([][]float64, len(r.Layers)),
	}
	for i := 0; i < n; i++ {
		t.ZoneIDs[i] = r.Zones.ZoneID(i)
	}
	for i, l := range r.Layers {
		t.Columns[i] = l.Name
		t.Values[i] = append([]float64(nil), l.Values...)
	}
	return t
}

// Header returns the CSV header: zone_id, the count column and each layer.
func (t *Table) Header() []string {
	h := []string{"zone_id", CountLayer}
	return append(h, t.Columns...)
}

// WriteCSV writes one row per zone. Missing values are written as "NA".
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	for z, id := range t.ZoneIDs {
		row := make([]string, 0, len(t.Columns)+2)
		row = append(row, id, strconv.Itoa(t.Count[z]))
		for c := range t.Columns {
			row = append(row, formatValue(t.Values[c][z]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
