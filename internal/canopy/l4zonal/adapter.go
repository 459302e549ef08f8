package l4zonal

import (
	"errors"
	"fmt"
	"math"
)

// StatFunc reduces a bag of values to a scalar. Values never contain NaN and
// are never empty when called through an Adapter.
type StatFunc func(values []float64) (float64, error)

// Adapter wraps a StatFunc with the defensive contract used for every zone:
// NaN values are removed, an empty bag yields NoData without calling Fn, and
// a failing Fn yields NoData plus a warning instead of an error.
type Adapter struct {
	Name   string // output layer name
	Fn     StatFunc
	NoData float64
}

// NewAdapter returns an adapter whose no-data value is NaN.
func NewAdapter(name string, fn StatFunc) Adapter {
	return Adapter{Name: name, Fn: fn, NoData: math.NaN()}
}

// StatWarning records a reduction that failed for one zone.
type StatWarning struct {
	Layer string
	Zone  int
	Err   error
}

func (w *StatWarning) Error() string {
	if w.Zone < 0 {
		return fmt.Sprintf("%s: %v", w.Layer, w.Err)
	}
	return fmt.Sprintf("%s: zone %d: %v", w.Layer, w.Zone, w.Err)
}

func (w *StatWarning) Unwrap() error { return w.Err }

// ErrNonNumeric is wrapped by warnings for reductions returning NaN or ±Inf.
var ErrNonNumeric = errors.New("reduction returned a non-numeric result")

// Apply runs the wrapped function over values. The returned warning is nil on
// success and on empty input; it never signals a condition that should stop
// the caller. values is not modified.
func (a Adapter) Apply(values []float64) (float64, *StatWarning) {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return a.NoData, nil
	}

	v, err := a.call(clean)
	if err != nil {
		return a.NoData, &StatWarning{Layer: a.Name, Zone: -1, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return a.NoData, &StatWarning{Layer: a.Name, Zone: -1, Err: fmt.Errorf("%w: %v", ErrNonNumeric, v)}
	}
	return v, nil
}

// call invokes Fn, converting a panic into an error.
func (a Adapter) call(values []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reduction panicked: %v", r)
		}
	}()
	return a.Fn(values)
}
