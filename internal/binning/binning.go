// Package binning assigns wealth quintile labels to RWI scores.
package binning

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// Labels from wealthiest to poorest.
var Labels = []string{"A", "B", "C", "D", "E"}

// quantiles are the cut points between bins.
var quantiles = []float64{0.2, 0.4, 0.6, 0.8}

// Result holds the cut thresholds and one label per input score.
type Result struct {
	Thresholds [4]float64
	Labels     []string
}

// Quintiles cuts scores at their empirical 20/40/60/80th percentiles.
// A score at or below the first threshold is E; above the last is A.
func Quintiles(scores []float64) (*Result, error) {
	if len(scores) == 0 {
		return nil, eris.New("binning: no scores")
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	r := &Result{Labels: make([]string, len(scores))}
	for k, p := range quantiles {
		r.Thresholds[k] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	for i, s := range scores {
		r.Labels[i] = r.Label(s)
	}
	return r, nil
}

// Label returns the category of a single score under r's thresholds.
func (r *Result) Label(score float64) string {
	for k, t := range r.Thresholds {
		if score <= t {
			return Labels[len(Labels)-1-k]
		}
	}
	return Labels[0]
}

// Counts tallies labels, including zero counts for every category.
func Counts(labels []string) map[string]int {
	out := make(map[string]int, len(Labels))
	for _, l := range Labels {
		out[l] = 0
	}
	for _, l := range labels {
		out[l]++
	}
	return out
}
