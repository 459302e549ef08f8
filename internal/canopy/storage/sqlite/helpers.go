package sqlite

import (
	"database/sql"
	"math"
)

// nullFloat64 stores NaN as NULL.
func nullFloat64(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// floatOrNaN reads NULL back as NaN.
func floatOrNaN(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}
