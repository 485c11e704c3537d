package model

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
)

// Predictor maps a feature matrix (one row per tile) to one score per row.
type Predictor interface {
	Predict(x *mat.Dense) ([]float64, error)
	Features() []string
}

// NewPredictor builds the predictor described by a validated artifact.
func NewPredictor(a *Artifact) (Predictor, error) {
	switch a.Kind {
	case KindLinear:
		return &linearModel{features: a.Features, intercept: a.Linear.Intercept,
			coef: mat.NewVecDense(len(a.Linear.Coefficients), append([]float64(nil), a.Linear.Coefficients...))}, nil
	case KindTreeEnsemble:
		rate := a.Ensemble.LearningRate
		if rate == 0 {
			rate = 1
		}
		agg := a.Ensemble.Aggregation
		if agg == "" {
			agg = AggregateMean
		}
		return &treeEnsemble{features: a.Features, trees: a.Ensemble.Trees,
			aggregation: agg, base: a.Ensemble.BaseScore, rate: rate}, nil
	}
	return nil, eris.Errorf("model: unknown kind %q", a.Kind)
}

func checkShape(x *mat.Dense, want int) (int, error) {
	rows, cols := x.Dims()
	if cols != want {
		return 0, eris.Wrapf(ErrShapeMismatch, "input has %d columns, model expects %d", cols, want)
	}
	return rows, nil
}

type linearModel struct {
	features  []string
	intercept float64
	coef      *mat.VecDense
}

func (m *linearModel) Features() []string { return m.features }

func (m *linearModel) Predict(x *mat.Dense) ([]float64, error) {
	rows, err := checkShape(x, m.coef.Len())
	if err != nil {
		return nil, err
	}
	var y mat.VecDense
	y.MulVec(x, m.coef)
	out := make([]float64, rows)
	for i := range out {
		out[i] = y.AtVec(i) + m.intercept
	}
	return out, nil
}

type treeEnsemble struct {
	features    []string
	trees       []Tree
	aggregation string
	base        float64
	rate        float64
}

func (m *treeEnsemble) Features() []string { return m.features }

func (m *treeEnsemble) Predict(x *mat.Dense) ([]float64, error) {
	rows, err := checkShape(x, len(m.features))
	if err != nil {
		return nil, err
	}
	out := make([]float64, rows)
	for i := range out {
		row := x.RawRowView(i)
		var sum float64
		for _, t := range m.trees {
			sum += t.eval(row)
		}
		if m.aggregation == AggregateSum {
			out[i] = m.base + m.rate*sum
		} else {
			out[i] = m.base + sum/float64(len(m.trees))
		}
	}
	return out, nil
}

// eval walks a validated tree from the root.
func (t Tree) eval(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Select builds the model input matrix from a feature table, picking the
// model's columns in model order.
func Select(t *features.Table, names []string) (*mat.Dense, error) {
	if t.Len() == 0 {
		return nil, eris.New("model: feature table is empty")
	}
	idx := make([]int, len(names))
	for k, name := range names {
		j, ok := t.ColumnIndex(name)
		if !ok {
			return nil, eris.Wrapf(ErrShapeMismatch, "feature %q missing from table", name)
		}
		idx[k] = j
	}

	x := mat.NewDense(t.Len(), len(names), nil)
	for i, row := range t.Rows {
		for k, j := range idx {
			x.Set(i, k, row[j])
		}
	}
	return x, nil
}
