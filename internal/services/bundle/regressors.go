package bundle

import (
	"encoding/json"
	"fmt"
	"math"

	"EnviroPulse/internal/domain/service"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model kinds accepted in artifacts.
const (
	KindLinear       = "linear"
	KindMLP          = "mlp"
	KindTreeEnsemble = "tree_ensemble"
)

const maxTreeNodes = 1 << 16

var (
	_ service.Regressor = (*Linear)(nil)
	_ service.Regressor = (*MLP)(nil)
	_ service.Regressor = (*TreeEnsemble)(nil)
)

// Scaler standardizes inputs as (x - mean) / scale. A zero scale is treated as 1.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) check(n int) error {
	if s == nil {
		return nil
	}
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler has %d/%d entries, want %d", len(s.Mean), len(s.Scale), n)
	}
	return nil
}

func (s *Scaler) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if s == nil {
		return out
	}
	floats.Sub(out, s.Mean)
	for i, sc := range s.Scale {
		if sc != 0 {
			out[i] /= sc
		}
	}
	return out
}

func checkInput(x []float64, n int) error {
	if len(x) != n {
		return fmt.Errorf("expected %d features, got %d", n, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is not finite", i)
		}
	}
	return nil
}

// Linear is intercept + coef · x.
type Linear struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
	Scaler    *Scaler   `json:"scaler,omitempty"`
}

func decodeLinear(raw json.RawMessage, n int) (*Linear, error) {
	var m Linear
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m.Coef) != n {
		return nil, fmt.Errorf("linear: %d coefficients for %d feature columns", len(m.Coef), n)
	}
	if err := m.Scaler.check(n); err != nil {
		return nil, fmt.Errorf("linear: %w", err)
	}
	return &m, nil
}

func (m *Linear) Kind() string { return KindLinear }

func (m *Linear) Predict(x []float64) (float64, error) {
	if err := checkInput(x, len(m.Coef)); err != nil {
		return 0, err
	}
	return m.Intercept + floats.Dot(m.Coef, m.Scaler.apply(x)), nil
}

// Layer is a dense layer; Weights has one row per output unit.
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// MLP is a feed-forward network with ReLU hidden layers and a single linear output.
type MLP struct {
	Layers []Layer `json:"layers"`
	Scaler *Scaler `json:"scaler,omitempty"`

	weights []*mat.Dense
	biases  []*mat.VecDense
	inputs  int
}

func decodeMLP(raw json.RawMessage, n int) (*MLP, error) {
	var m MLP
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("mlp: no layers")
	}
	if err := m.Scaler.check(n); err != nil {
		return nil, fmt.Errorf("mlp: %w", err)
	}
	in := n
	for li, l := range m.Layers {
		out := len(l.Weights)
		if out == 0 || len(l.Bias) != out {
			return nil, fmt.Errorf("mlp: layer %d has %d rows and %d biases", li, out, len(l.Bias))
		}
		flat := make([]float64, 0, out*in)
		for r, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("mlp: layer %d row %d has %d weights, want %d", li, r, len(row), in)
			}
			flat = append(flat, row...)
		}
		m.weights = append(m.weights, mat.NewDense(out, in, flat))
		m.biases = append(m.biases, mat.NewVecDense(out, append([]float64(nil), l.Bias...)))
		in = out
	}
	if in != 1 {
		return nil, fmt.Errorf("mlp: output layer has %d units, want 1", in)
	}
	m.inputs = n
	return &m, nil
}

func (m *MLP) Kind() string { return KindMLP }

func (m *MLP) Predict(x []float64) (float64, error) {
	if err := checkInput(x, m.inputs); err != nil {
		return 0, err
	}
	act := mat.NewVecDense(len(x), m.Scaler.apply(x))
	last := len(m.weights) - 1
	for i, w := range m.weights {
		r, _ := w.Dims()
		next := mat.NewVecDense(r, nil)
		next.MulVec(w, act)
		next.AddVec(next, m.biases[i])
		if i < last {
			for j := 0; j < r; j++ {
				if next.AtVec(j) < 0 {
					next.SetVec(j, 0)
				}
			}
		}
		act = next
	}
	return act.AtVec(0), nil
}

// Tree is a binary regression tree in flat array form. Node i is a leaf when
// Left[i] and Right[i] are both -1; otherwise x[Feature[i]] <= Threshold[i]
// descends left.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

func (t *Tree) validate(n int) error {
	size := len(t.Value)
	if size == 0 || size > maxTreeNodes {
		return fmt.Errorf("tree has %d nodes", size)
	}
	if len(t.Feature) != size || len(t.Threshold) != size || len(t.Left) != size || len(t.Right) != size {
		return fmt.Errorf("tree arrays have unequal lengths")
	}
	for i := 0; i < size; i++ {
		l, r := t.Left[i], t.Right[i]
		if l == -1 && r == -1 {
			continue
		}
		// Children always follow their parent, so traversal terminates.
		if l <= i || r <= i || l >= size || r >= size {
			return fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= n {
			return fmt.Errorf("node %d splits on feature %d of %d", i, t.Feature[i], n)
		}
	}
	return nil
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for t.Left[i] != -1 {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.Left[i]
		} else {
			i = t.Right[i]
		}
	}
	return t.Value[i]
}

// TreeEnsemble is base_score + learning_rate * sum of tree outputs.
type TreeEnsemble struct {
	BaseScore    float64 `json:"base_score"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`

	inputs int
}

func decodeTrees(raw json.RawMessage, n int) (*TreeEnsemble, error) {
	m := TreeEnsemble{LearningRate: 1}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("tree_ensemble: no trees")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(n); err != nil {
			return nil, fmt.Errorf("tree_ensemble: tree %d: %w", i, err)
		}
	}
	m.inputs = n
	return &m, nil
}

func (m *TreeEnsemble) Kind() string { return KindTreeEnsemble }

func (m *TreeEnsemble) Predict(x []float64) (float64, error) {
	if err := checkInput(x, m.inputs); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range m.Trees {
		sum += m.Trees[i].eval(x)
	}
	return m.BaseScore + m.LearningRate*sum, nil
}
