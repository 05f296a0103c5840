// Package forecast fits per-series ARIMA models over the reconciled daily
// table and produces fixed-horizon point forecasts for presentation.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ndfz-analytics/gridview/internal/metrics"
)

// Series is a single numeric time series ordered by day. Gaps are allowed and
// not filled; Values holds only observed (non-missing) cells.
type Series struct {
	Name   string
	Days   []time.Time
	Values []float64
}

// Point is one forecasted value for one future day.
type Point struct {
	Day   time.Time `json:"day"`
	Value float64   `json:"value"`
}

// Result is a complete forecast for one series: exactly horizon contiguous
// daily points immediately following the last observed day. Values are
// rounded to the nearest integer for presentation.
type Result struct {
	SeriesName string    `json:"series_name"`
	Order      Order     `json:"order"`
	Points     []Point   `json:"points"`
	ComputedAt time.Time `json:"computed_at"`
	FromCache  bool      `json:"-"`
}

// Forecaster computes and memoizes forecasts. Each invocation is stateless
// given (series, order, horizon); the cache is purely a performance
// optimization and safe for concurrent readers.
type Forecaster struct {
	cache   *resultCache
	metrics *metrics.Metrics
}

// Option configures a Forecaster.
type Option func(*config)

type config struct {
	cacheSize int
	cacheTTL  time.Duration
	metrics   *metrics.Metrics
}

// WithCache overrides the cache size and TTL.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *config) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// New creates a Forecaster.
func New(opts ...Option) (*Forecaster, error) {
	cfg := config{cacheSize: 256, cacheTTL: 0}
	for _, o := range opts {
		o(&cfg)
	}
	cache, err := newResultCache(cfg.cacheSize, cfg.cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("forecast cache: %w", err)
	}
	return &Forecaster{cache: cache, metrics: cfg.metrics}, nil
}

// Forecast fits an ARIMA model of the given order on the series and returns
// horizon daily points after the last observed day. Fitting failures come
// back as InsufficientDataError or NonConvergenceError annotated with the
// series name; the caller decides whether to omit the panel or warn.
func (f *Forecaster) Forecast(ctx context.Context, s Series, order Order, horizon int) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	if len(s.Days) != len(s.Values) {
		return nil, fmt.Errorf("series %s: %d days but %d values", s.Name, len(s.Days), len(s.Values))
	}
	if len(s.Values) == 0 {
		return nil, &InsufficientDataError{Series: s.Name, Need: order.MinObservations(), Have: 0}
	}

	key := cacheKey(s.Values, order, horizon)
	if res, ok := f.cache.get(key); ok {
		if f.metrics != nil {
			f.metrics.ForecastCacheHits.Inc()
		}
		// The key covers values only, so the cached points may be anchored
		// to another series' calendar span. Re-anchor them to this series'
		// last observed day; the values themselves are span-independent.
		lastDay := s.Days[len(s.Days)-1]
		cached := *res
		cached.SeriesName = s.Name
		cached.FromCache = true
		cached.Points = make([]Point, len(res.Points))
		for i, p := range res.Points {
			cached.Points[i] = Point{Day: lastDay.AddDate(0, 0, i+1), Value: p.Value}
		}
		return &cached, nil
	}
	if f.metrics != nil {
		f.metrics.ForecastCacheMisses.Inc()
	}

	ctx, span := otel.Tracer("gridview/forecast").Start(ctx, "forecast.fit")
	span.SetAttributes(
		attribute.String("series", s.Name),
		attribute.String("order", order.String()),
		attribute.Int("horizon", horizon),
		attribute.Int("observations", len(s.Values)),
	)
	defer span.End()
	_ = ctx

	model, err := Fit(s.Values, order)
	if err != nil {
		if f.metrics != nil {
			f.metrics.ForecastsFailed.Inc()
		}
		return nil, annotate(err, s.Name)
	}

	raw := model.Forecast(horizon)
	lastDay := s.Days[len(s.Days)-1]
	points := make([]Point, horizon)
	for i, v := range raw {
		points[i] = Point{
			Day:   lastDay.AddDate(0, 0, i+1),
			Value: math.Round(v),
		}
	}

	res := &Result{
		SeriesName: s.Name,
		Order:      order,
		Points:     points,
		ComputedAt: time.Now().UTC(),
	}
	f.cache.put(key, res)
	if f.metrics != nil {
		f.metrics.ForecastsComputed.Inc()
	}
	return res, nil
}

// CacheStats exposes cache effectiveness for observability.
func (f *Forecaster) CacheStats() (hits, misses uint64, size int) {
	return f.cache.stats()
}

func annotate(err error, series string) error {
	var ins *InsufficientDataError
	if errors.As(err, &ins) {
		ins.Series = series
		return ins
	}
	var nc *NonConvergenceError
	if errors.As(err, &nc) {
		nc.Series = series
		return nc
	}
	return fmt.Errorf("series %s: %w", series, err)
}
