package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/domain/repository"
	"EnviroPulse/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Registry loads bundles from a store and keeps them for the life of the
// process. Concurrent requests for the same path share one load.
type Registry struct {
	store   repository.BundleStore
	l       *logger.Logger
	metrics repository.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	bundles map[string]*Bundle
	group   singleflight.Group
}

// Option configures Registry.
type Option func(*Registry)

func WithLogger(l *logger.Logger) Option { return func(r *Registry) { r.l = l } }

func WithMetrics(m repository.Metrics) Option { return func(r *Registry) { r.metrics = m } }

// NewRegistry creates an empty registry over store.
func NewRegistry(store repository.BundleStore, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		now:     time.Now,
		bundles: make(map[string]*Bundle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the bundle at path, loading it on first use. Failed loads are
// not cached, so a later call retries.
func (r *Registry) Get(ctx context.Context, path string) (*Bundle, error) {
	key := filepath.Clean(path)
	if b, ok := r.cached(key); ok {
		return b, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if b, ok := r.cached(key); ok {
			return b, nil
		}
		b, err := r.load(ctx, key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.bundles[key] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

// ForMetric returns the bundle trained for metric.
func (r *Registry) ForMetric(ctx context.Context, metric models.Metric) (*Bundle, error) {
	return r.Get(ctx, r.store.Locate(string(metric)))
}

// Preload loads the bundle of every metric, returning the first failure.
func (r *Registry) Preload(ctx context.Context, metrics []models.Metric) error {
	for _, m := range metrics {
		if _, err := r.ForMetric(ctx, m); err != nil {
			return fmt.Errorf("preload %s: %w", m, err)
		}
	}
	return nil
}

// Loaded describes the cached bundles, ordered by path.
func (r *Registry) Loaded() []models.BundleInfo {
	r.mu.RLock()
	out := make([]models.BundleInfo, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (r *Registry) cached(key string) (*Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[key]
	return b, ok
}

func (r *Registry) load(ctx context.Context, path string) (*Bundle, error) {
	start := time.Now()
	data, err := r.store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.record(path, "not_found")
			return nil, models.NewForecastError(models.KindBundleNotFound, fmt.Sprintf("missing model bundle: %s", path))
		}
		r.record(path, "error")
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}

	b, err := Decode(path, data)
	if err != nil {
		r.record(path, "malformed")
		if r.l != nil {
			r.l.Error("bundle rejected", logger.String("path", path), logger.Error(err))
		}
		return nil, err
	}
	b.LoadedAt = r.now().UTC()

	r.record(path, "ok")
	if r.l != nil {
		r.l.Info("bundle loaded",
			logger.String("path", path),
			logger.String("target", b.Target),
			logger.String("model", b.Model.Kind()),
			logger.Int("features", len(b.FeatureCols)),
			logger.Int("hmax_min", b.HmaxMin),
			logger.Duration("took_ms", time.Since(start)),
		)
	}
	return b, nil
}

func (r *Registry) record(path, result string) {
	if r.metrics != nil {
		r.metrics.RecordBundleLoad(filepath.Base(path), result)
	}
}
