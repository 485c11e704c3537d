// Package scale implements column-wise min-max scaling.
package scale

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler maps each column to [0, 1] using per-column bounds.
type MinMaxScaler struct {
	Min []float64 `yaml:"min" json:"min"`
	Max []float64 `yaml:"max" json:"max"`

	// Clip bounds transformed values to [0, 1]; set for scalers fitted on
	// other data than they transform.
	Clip bool `yaml:"-" json:"-"`
}

// Fit learns per-column bounds from rows. All rows must share a width.
func Fit(rows [][]float64) (*MinMaxScaler, error) {
	if len(rows) == 0 {
		return nil, eris.New("scale: no rows to fit")
	}
	width := len(rows[0])
	s := &MinMaxScaler{Min: make([]float64, width), Max: make([]float64, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, eris.Errorf("scale: row %d has %d columns, want %d", i, len(row), width)
			}
			col[i] = row[j]
		}
		s.Min[j] = floats.Min(col)
		s.Max[j] = floats.Max(col)
	}
	return s, nil
}

// Prefitted wraps stored bounds, clipping values outside them.
func Prefitted(min, max []float64) (*MinMaxScaler, error) {
	if len(min) != len(max) {
		return nil, eris.Errorf("scale: %d minimums for %d maximums", len(min), len(max))
	}
	for j := range min {
		if max[j] < min[j] {
			return nil, eris.Errorf("scale: column %d has max %g below min %g", j, max[j], min[j])
		}
	}
	return &MinMaxScaler{Min: min, Max: max, Clip: true}, nil
}

// Width is the number of columns the scaler was fitted on.
func (s *MinMaxScaler) Width() int { return len(s.Min) }

// Transform returns scaled copies of rows. Zero-range columns map to 0.
func (s *MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != s.Width() {
			return nil, eris.Errorf("scale: row %d has %d columns, scaler has %d", i, len(row), s.Width())
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = s.value(j, v)
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *MinMaxScaler) value(j int, v float64) float64 {
	span := s.Max[j] - s.Min[j]
	if span == 0 {
		return 0
	}
	x := (v - s.Min[j]) / span
	if s.Clip {
		x = clamp01(x)
	}
	return x
}

// Vector min-max scales a single series to [0, 1]. A constant series maps to
// all zeros.
func Vector(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	lo, hi := floats.Min(v), floats.Max(v)
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, x := range v {
		out[i] = clamp01((x - lo) / span)
	}
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
