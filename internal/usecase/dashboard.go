package usecase

import (
	"context"
	"fmt"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	"EnviroPulse/internal/service/cache"
	"EnviroPulse/internal/services/dashboard"
	"EnviroPulse/internal/services/timenorm"
	applogger "EnviroPulse/pkg/logger"
)

// DashboardUseCase builds the temperature and noise dashboards over the
// recent window of all sensors.
type DashboardUseCase struct {
	query  domrepo.ReadingQuery
	norm   *timenorm.Normalizer
	agg    *dashboard.Aggregator
	window time.Duration
	limit  int

	cache    cache.BytesCache
	cacheTTL time.Duration
	now      func() time.Time
	l        *applogger.Logger
}

type DashboardConfig struct {
	Window   time.Duration
	RowLimit int
	CacheTTL time.Duration
}

func NewDashboardUseCase(query domrepo.ReadingQuery, norm *timenorm.Normalizer, c cache.BytesCache, cfg DashboardConfig, l *applogger.Logger) *DashboardUseCase {
	if cfg.Window < 24*time.Hour {
		cfg.Window = 48 * time.Hour
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 50000
	}
	return &DashboardUseCase{
		query:    query,
		norm:     norm,
		agg:      dashboard.NewAggregator(norm.Location()),
		window:   cfg.Window,
		limit:    cfg.RowLimit,
		cache:    c,
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
		l:        l,
	}
}

func (uc *DashboardUseCase) Temperature(ctx context.Context, topN int) (*models.TemperatureDashboard, error) {
	var out models.TemperatureDashboard
	if uc.cached(ctx, "temperature", topN, &out) {
		return &out, nil
	}
	rows, skipped, now, err := uc.rows(ctx)
	if err != nil {
		return nil, err
	}
	out = uc.agg.Temperature(rows, now, topN)
	out.SkippedRows = skipped
	uc.store(ctx, "temperature", topN, &out)
	return &out, nil
}

func (uc *DashboardUseCase) Noise(ctx context.Context, topN int) (*models.NoiseDashboard, error) {
	var out models.NoiseDashboard
	if uc.cached(ctx, "noise", topN, &out) {
		return &out, nil
	}
	rows, skipped, now, err := uc.rows(ctx)
	if err != nil {
		return nil, err
	}
	out = uc.agg.Noise(rows, now, topN)
	out.SkippedRows = skipped
	uc.store(ctx, "noise", topN, &out)
	return &out, nil
}

// rows loads the window and normalizes it. Rows with unparseable timestamps
// are dropped and counted.
func (uc *DashboardUseCase) rows(ctx context.Context) ([]models.Reading, int, time.Time, error) {
	now := uc.now().UTC()
	raw, err := uc.query.Window(ctx, now.Add(-uc.window), now, uc.limit)
	if err != nil {
		return nil, 0, now, fmt.Errorf("dashboard window: %w", err)
	}
	rows, skipped := uc.norm.NormalizeBestEffort(raw)
	if skipped > 0 && uc.l != nil {
		uc.l.Warn("dashboard skipped rows",
			applogger.Int("skipped", skipped),
			applogger.Int("rows", len(raw)),
		)
	}
	return rows, skipped, now, nil
}

func (uc *DashboardUseCase) cached(ctx context.Context, name string, topN int, dst interface{}) bool {
	if uc.cache == nil || uc.cacheTTL <= 0 {
		return false
	}
	ok, err := cache.GetJSON(ctx, uc.cache, dashboardKey(name, topN), dst)
	if err != nil && uc.l != nil {
		uc.l.Warn("dashboard cache read failed", applogger.String("dashboard", name), applogger.Error(err))
	}
	return ok
}

func (uc *DashboardUseCase) store(ctx context.Context, name string, topN int, v interface{}) {
	if uc.cache == nil || uc.cacheTTL <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, uc.cache, dashboardKey(name, topN), v, uc.cacheTTL); err != nil && uc.l != nil {
		uc.l.Warn("dashboard cache write failed", applogger.String("dashboard", name), applogger.Error(err))
	}
}

func dashboardKey(name string, topN int) string {
	return fmt.Sprintf("dashboard:%s:%d", name, topN)
}
