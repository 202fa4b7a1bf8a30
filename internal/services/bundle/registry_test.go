package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"EnviroPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	reads int32
	delay time.Duration
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (s *memStore) put(path string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.files[filepath.Clean(path)] = data
	s.mu.Unlock()
}

func (s *memStore) Locate(metric string) string { return filepath.Join("models", metric+"_bundle.json") }

func (s *memStore) Read(_ context.Context, path string) ([]byte, error) {
	atomic.AddInt32(&s.reads, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func linearArtifact(target string) map[string]interface{} {
	return map[string]interface{}{
		"version":      "1",
		"target":       target,
		"feature_cols": []string{target + "_lag_1m", "horizon_min"},
		"hmax_min":     180,
		"cadence_min":  1,
		"model": map[string]interface{}{
			"kind":      "linear",
			"intercept": 0.5,
			"coef":      []float64{1, 0.1},
		},
	}
}

func TestRegistry_LoadsAndCaches(t *testing.T) {
	store := newMemStore()
	store.put("models/celsius_bundle.json", linearArtifact("celsius"))
	r := NewRegistry(store)

	b1, err := r.ForMetric(context.Background(), models.MetricCelsius)
	require.NoError(t, err)
	b2, err := r.Get(context.Background(), "./models/../models/celsius_bundle.json")
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.reads))
	assert.Equal(t, "celsius_bundle.json", b1.ID)
	assert.Equal(t, 180, b1.HmaxMin)
	assert.Equal(t, KindLinear, b1.Model.Kind())

	loaded := r.Loaded()
	require.Len(t, loaded, 1)
	assert.Equal(t, "celsius", loaded[0].Target)
	assert.False(t, loaded[0].LoadedAt.IsZero())
}

func TestRegistry_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	store := newMemStore()
	store.delay = 20 * time.Millisecond
	store.put("models/average_db_bundle.json", linearArtifact("average_db"))
	r := NewRegistry(store)

	const n = 32
	var wg sync.WaitGroup
	got := make([]*Bundle, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = r.ForMetric(context.Background(), models.MetricAverageDB)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.reads))
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(newMemStore())

	_, err := r.ForMetric(context.Background(), models.MetricCelsius)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBundleNotFound))
	assert.Contains(t, err.Error(), "celsius_bundle.json")
}

func TestRegistry_FailuresAreNotCached(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store)

	_, err := r.ForMetric(context.Background(), models.MetricCelsius)
	require.Error(t, err)

	store.put("models/celsius_bundle.json", linearArtifact("celsius"))
	b, err := r.ForMetric(context.Background(), models.MetricCelsius)
	require.NoError(t, err)
	assert.Equal(t, "celsius", b.Target)
}

func TestRegistry_Preload(t *testing.T) {
	store := newMemStore()
	store.put("models/celsius_bundle.json", linearArtifact("celsius"))
	r := NewRegistry(store)

	err := r.Preload(context.Background(), []models.Metric{models.MetricCelsius, models.MetricAverageDB})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBundleNotFound))
	assert.Len(t, r.Loaded(), 1)
}

func TestDecode_MissingAttribute(t *testing.T) {
	for _, attr := range requiredAttrs {
		a := linearArtifact("celsius")
		delete(a, attr)
		data, _ := json.Marshal(a)

		_, err := Decode("models/celsius_bundle.json", data)
		require.Error(t, err, attr)
		assert.True(t, errors.Is(err, models.ErrMalformedBundle), attr)
		assert.Contains(t, err.Error(), fmt.Sprintf("missing '%s'", attr))
	}
}

func TestDecode_RejectsInvalidContracts(t *testing.T) {
	cases := map[string]func(a map[string]interface{}){
		"not divisible": func(a map[string]interface{}) {
			a["cadence_min"] = 2
		},
		"unknown column": func(a map[string]interface{}) {
			a["feature_cols"] = []string{"celsius_lag_2m", "horizon_min"}
		},
		"unknown target": func(a map[string]interface{}) {
			a["target"] = "humidity"
		},
		"coef mismatch": func(a map[string]interface{}) {
			a["model"] = map[string]interface{}{"kind": "linear", "coef": []float64{1}}
		},
		"unknown kind": func(a map[string]interface{}) {
			a["model"] = map[string]interface{}{"kind": "svm"}
		},
		"zero hmax": func(a map[string]interface{}) {
			a["hmax_min"] = 0
		},
	}
	for name, mutate := range cases {
		a := linearArtifact("celsius")
		mutate(a)
		data, _ := json.Marshal(a)

		_, err := Decode("b.json", data)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, models.ErrMalformedBundle), name)
	}
}

func TestDecode_CustomOffsets(t *testing.T) {
	a := linearArtifact("average_db")
	a["cadence_min"] = 5
	a["lags_min"] = []int{5, 10}
	a["roll_windows_min"] = []int{10}
	a["feature_cols"] = []string{"average_db_lag_10m", "average_db_roll_std_10m"}
	data, _ := json.Marshal(a)

	b, err := Decode("b.json", data)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 10}, b.Schema.LagsMin)
	assert.Equal(t, 3, b.Schema.RequiredSamples())
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode("b.json", []byte("\x80\x04joblib"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMalformedBundle))
}

func TestDecode_ShippedBundles(t *testing.T) {
	for _, m := range models.ForecastMetrics {
		path := filepath.Join("..", "..", "..", "models", string(m)+"_bundle.json")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		b, err := Decode(path, data)
		require.NoError(t, err, m)
		assert.Equal(t, string(m), b.Target)
		assert.Greater(t, b.HmaxMin, 0)
	}

	data, err := os.ReadFile(filepath.Join("..", "..", "..", "models", "average_db_bundle.json"))
	require.NoError(t, err)
	b, err := Decode("average_db_bundle.json", data)
	require.NoError(t, err)
	y, err := b.Model.Predict([]float64{62, 60, 58, 12, 0, 30})
	require.NoError(t, err)
	assert.InDelta(t, 64.1, y, 1e-9)
}
