package bundle

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestLinear_WithScaler(t *testing.T) {
	m, err := decodeModel(raw(t, map[string]interface{}{
		"kind":      "linear",
		"intercept": 1.0,
		"coef":      []float64{2, -1},
		"scaler":    map[string]interface{}{"mean": []float64{10, 0}, "scale": []float64{2, 0}},
	}), 2)
	require.NoError(t, err)

	// (14-10)/2 = 2, second feature unscaled: 1 + 2*2 - 1*3
	got, err := m.Predict([]float64{14, 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-12)

	_, err = m.Predict([]float64{1})
	assert.Error(t, err)
	_, err = m.Predict([]float64{1, math.NaN()})
	assert.Error(t, err)
}

func TestMLP_ReLUHiddenLayer(t *testing.T) {
	m, err := decodeModel(raw(t, map[string]interface{}{
		"kind": "mlp",
		"layers": []map[string]interface{}{
			{"weights": [][]float64{{1, 0}, {0, 1}, {-1, -1}}, "bias": []float64{0, 0, 0}},
			{"weights": [][]float64{{1, 1, 1}}, "bias": []float64{0.5}},
		},
	}), 2)
	require.NoError(t, err)
	assert.Equal(t, KindMLP, m.Kind())

	// hidden = relu(3, 4, -7) = (3, 4, 0); out = 7 + 0.5
	got, err := m.Predict([]float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, got, 1e-12)
}

func TestMLP_RejectsShapeMismatch(t *testing.T) {
	_, err := decodeModel(raw(t, map[string]interface{}{
		"kind": "mlp",
		"layers": []map[string]interface{}{
			{"weights": [][]float64{{1, 0, 0}}, "bias": []float64{0}},
		},
	}), 2)
	assert.Error(t, err)

	_, err = decodeModel(raw(t, map[string]interface{}{
		"kind": "mlp",
		"layers": []map[string]interface{}{
			{"weights": [][]float64{{1, 0}, {0, 1}}, "bias": []float64{0, 0}},
		},
	}), 2)
	assert.Error(t, err, "two output units")
}

func stump(feature int, threshold, left, right float64) map[string]interface{} {
	return map[string]interface{}{
		"feature":   []int{feature, -2, -2},
		"threshold": []float64{threshold, 0, 0},
		"left":      []int{1, -1, -1},
		"right":     []int{2, -1, -1},
		"value":     []float64{0, left, right},
	}
}

func TestTreeEnsemble(t *testing.T) {
	m, err := decodeModel(raw(t, map[string]interface{}{
		"kind":          "tree_ensemble",
		"base_score":    10.0,
		"learning_rate": 0.5,
		"trees":         []interface{}{stump(0, 5, -2, 2), stump(1, 0, 1, 3)},
	}), 2)
	require.NoError(t, err)

	got, err := m.Predict([]float64{5, 1}) // left of first (<=), right of second
	require.NoError(t, err)
	assert.InDelta(t, 10+0.5*(-2+3), got, 1e-12)

	got, err = m.Predict([]float64{6, -1})
	require.NoError(t, err)
	assert.InDelta(t, 10+0.5*(2+1), got, 1e-12)
}

func TestTreeEnsemble_RejectsCycles(t *testing.T) {
	tree := stump(0, 1, 0, 0)
	tree["left"] = []int{1, 0, -1}
	tree["right"] = []int{2, 0, -1}

	_, err := decodeModel(raw(t, map[string]interface{}{
		"kind":  "tree_ensemble",
		"trees": []interface{}{tree},
	}), 1)
	assert.Error(t, err)

	_, err = decodeModel(raw(t, map[string]interface{}{
		"kind":  "tree_ensemble",
		"trees": []interface{}{stump(3, 1, 0, 0)},
	}), 1)
	assert.Error(t, err, "feature index out of range")
}
