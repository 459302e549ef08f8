package l4zonal

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Built-in reductions. They expect non-empty, NaN-free input, which Adapter
// guarantees.

// Count returns the number of values.
func Count(values []float64) (float64, error) { return float64(len(values)), nil }

// Sum returns the sum of values.
func Sum(values []float64) (float64, error) { return floats.Sum(values), nil }

// Min returns the smallest value.
func Min(values []float64) (float64, error) { return floats.Min(values), nil }

// Max returns the largest value.
func Max(values []float64) (float64, error) { return floats.Max(values), nil }

// Mean returns the arithmetic mean.
func Mean(values []float64) (float64, error) { return stat.Mean(values, nil), nil }

// Median returns the middle value, averaging the two middle values for even
// counts.
func Median(values []float64) (float64, error) {
	s := sortedCopy(values)
	n := len(s)
	if n%2 == 1 {
		return s[n/2], nil
	}
	return (s[n/2-1] + s[n/2]) / 2, nil
}

// StdDev returns the sample standard deviation. A single value has no
// spread estimate and yields NaN, which Adapter records as no data.
func StdDev(values []float64) (float64, error) { return stat.StdDev(values, nil), nil }

// Quantile returns a reduction computing the p-quantile (0 <= p <= 1) with
// linear interpolation between order statistics.
func Quantile(p float64) StatFunc {
	return func(values []float64) (float64, error) {
		if p < 0 || p > 1 {
			return 0, fmt.Errorf("quantile %v outside [0, 1]", p)
		}
		s := sortedCopy(values)
		return stat.Quantile(p, stat.LinInterp, s, nil), nil
	}
}

// TopMean returns a reduction computing the mean of the n largest values.
// With fewer than n values it averages all of them. This is the usual
// definition of top height when applied to tree heights.
func TopMean(n int) StatFunc {
	return func(values []float64) (float64, error) {
		if n < 1 {
			return 0, fmt.Errorf("top mean needs n >= 1, got %d", n)
		}
		s := sortedCopy(values)
		k := n
		if k > len(s) {
			k = len(s)
		}
		return stat.Mean(s[len(s)-k:], nil), nil
	}
}

func sortedCopy(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

// DefaultAdapters returns the standard summary set: count, max, mean,
// median, min and sd.
func DefaultAdapters() []Adapter {
	return []Adapter{
		NewAdapter("count", Count),
		NewAdapter("max", Max),
		NewAdapter("mean", Mean),
		NewAdapter("median", Median),
		NewAdapter("min", Min),
		NewAdapter("sd", StdDev),
	}
}

// PrefixedAdapters returns copies of adapters named prefix+"_"+name, so the
// same reduction set can be requested for several attributes.
func PrefixedAdapters(prefix string, adapters []Adapter) []Adapter {
	out := make([]Adapter, len(adapters))
	for i, a := range adapters {
		a.Name = prefix + "_" + a.Name
		out[i] = a
	}
	return out
}
