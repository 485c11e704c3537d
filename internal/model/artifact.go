// Package model loads fitted regression artifacts and runs inference.
package model

import (
	"bytes"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/scale"
)

// ErrShapeMismatch is returned when inputs do not match the model's features.
var ErrShapeMismatch = errors.New("model: shape mismatch")

// Model kinds.
const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// Ensemble aggregations.
const (
	AggregateMean = "mean"
	AggregateSum  = "sum"
)

// Artifact is the serialized form of a fitted model. JSON artifacts decode
// through the same YAML decoder.
type Artifact struct {
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"`
	Target   string        `yaml:"target"`
	Features []string      `yaml:"features"`
	Linear   *Linear       `yaml:"linear,omitempty"`
	Ensemble *Ensemble     `yaml:"ensemble,omitempty"`
	Scaler   *ScalerParams `yaml:"scaler,omitempty"`
}

// Linear holds ordinary least-squares (or ridge/lasso) weights.
type Linear struct {
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
}

// Ensemble is a forest or boosted set of regression trees.
type Ensemble struct {
	Aggregation  string  `yaml:"aggregation"`
	BaseScore    float64 `yaml:"base_score"`
	LearningRate float64 `yaml:"learning_rate"`
	Trees        []Tree  `yaml:"trees"`
}

// Tree is a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `yaml:"nodes"`
}

// Node is a split (go left when x[Feature] <= Threshold) or a leaf.
type Node struct {
	Leaf      bool    `yaml:"leaf,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
	Feature   int     `yaml:"feature,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Left      int     `yaml:"left,omitempty"`
	Right     int     `yaml:"right,omitempty"`
}

// ScalerParams are the training-set feature bounds.
type ScalerParams struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

// Load reads and validates an artifact from path.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "model: read artifact")
	}
	a, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "model: %s", path)
	}
	return a, nil
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Artifact, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, eris.Wrap(err, "model: decode artifact")
	}
	a.Kind = strings.ToLower(strings.TrimSpace(a.Kind))
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the artifact is internally consistent.
func (a *Artifact) Validate() error {
	if len(a.Features) == 0 {
		return eris.New("model: artifact lists no features")
	}
	seen := make(map[string]bool, len(a.Features))
	for _, f := range a.Features {
		if seen[f] {
			return eris.Errorf("model: feature %q listed twice", f)
		}
		seen[f] = true
	}

	switch a.Kind {
	case KindLinear:
		if a.Linear == nil {
			return eris.New("model: linear artifact has no linear section")
		}
		if len(a.Linear.Coefficients) != len(a.Features) {
			return eris.Wrapf(ErrShapeMismatch, "%d coefficients for %d features",
				len(a.Linear.Coefficients), len(a.Features))
		}
	case KindTreeEnsemble:
		if err := a.validateEnsemble(); err != nil {
			return err
		}
	default:
		return eris.Errorf("model: unknown kind %q", a.Kind)
	}

	if a.Scaler != nil {
		if len(a.Scaler.Min) != len(a.Features) || len(a.Scaler.Max) != len(a.Features) {
			return eris.Wrapf(ErrShapeMismatch, "scaler has %d/%d bounds for %d features",
				len(a.Scaler.Min), len(a.Scaler.Max), len(a.Features))
		}
	}
	return nil
}

func (a *Artifact) validateEnsemble() error {
	e := a.Ensemble
	if e == nil || len(e.Trees) == 0 {
		return eris.New("model: tree ensemble has no trees")
	}
	switch e.Aggregation {
	case "", AggregateMean, AggregateSum:
	default:
		return eris.Errorf("model: unknown aggregation %q", e.Aggregation)
	}
	for i, t := range e.Trees {
		if err := t.validate(len(a.Features)); err != nil {
			return eris.Wrapf(err, "model: tree %d", i)
		}
	}
	return nil
}

// validate checks child indices, feature indices and that no cycle is
// reachable from the root.
func (t Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return eris.New("tree has no nodes")
	}

	const (
		unvisited = iota
		active
		done
	)
	state := make([]int, len(t.Nodes))

	var visit func(i int) error
	visit = func(i int) error {
		if i < 0 || i >= len(t.Nodes) {
			return eris.Errorf("node index %d out of range", i)
		}
		switch state[i] {
		case active:
			return eris.Errorf("cycle through node %d", i)
		case done:
			return nil
		}
		n := t.Nodes[i]
		if n.Leaf {
			state[i] = done
			return nil
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return eris.Errorf("node %d splits on feature %d of %d", i, n.Feature, nFeatures)
		}
		state[i] = active
		if err := visit(n.Left); err != nil {
			return err
		}
		if err := visit(n.Right); err != nil {
			return err
		}
		state[i] = done
		return nil
	}
	return visit(0)
}

// FeatureScaler returns the stored scaler, or nil when the artifact has none.
func (a *Artifact) FeatureScaler() (*scale.MinMaxScaler, error) {
	if a.Scaler == nil {
		return nil, nil
	}
	return scale.Prefitted(a.Scaler.Min, a.Scaler.Max)
}

// Summary describes an artifact for display.
type Summary struct {
	Name      string
	Kind      string
	Target    string
	Features  int
	Trees     int
	Nodes     int
	HasScaler bool
}

// Summarize returns counts describing the artifact.
func (a *Artifact) Summarize() Summary {
	s := Summary{
		Name:      a.Name,
		Kind:      a.Kind,
		Target:    a.Target,
		Features:  len(a.Features),
		HasScaler: a.Scaler != nil,
	}
	if a.Ensemble != nil {
		s.Trees = len(a.Ensemble.Trees)
		for _, t := range a.Ensemble.Trees {
			s.Nodes += len(t.Nodes)
		}
	}
	return s
}
