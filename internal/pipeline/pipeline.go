// Package pipeline runs the periodic recompute cycle: read ticks, resample
// to bars, derive the signal series, check thresholds, publish the snapshot.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"pairwatch/internal/alert"
	"pairwatch/internal/logger"
	"pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/resample"
	"pairwatch/internal/signal"
)

// Store is the persistence surface the pipeline reads from.
type Store interface {
	QueryTicks(symbol string, lookback time.Duration) ([]model.Tick, error)
	Clear() error
}

// Publisher pushes each cycle's snapshot to downstream consumers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Config holds the per-pair computation parameters.
type Config struct {
	SymbolA  string
	SymbolB  string
	Cadence  time.Duration // bar bucket width
	Lookback time.Duration // how far back ticks are read each cycle
	Interval time.Duration // recompute cadence
	Hedge    *float64      // nil = estimate by OLS each cycle
}

// Pipeline orchestrates one pair. It owns no goroutines besides the one
// running Run; each cycle is a full recomputation, so a missed or slow
// cycle has no effect on the next.
type Pipeline struct {
	cfg      Config
	pairKey  string
	store    Store
	engine   *signal.Engine
	detector *alert.Detector
	pub      Publisher // optional
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
}

// New wires a pipeline. pub, prom and health may be nil.
func New(cfg Config, store Store, engine *signal.Engine, detector *alert.Detector, pub Publisher, prom *metrics.Metrics, health *metrics.HealthStatus) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		pairKey:  model.PairKey(cfg.SymbolA, cfg.SymbolB),
		store:    store,
		engine:   engine,
		detector: detector,
		pub:      pub,
		prom:     prom,
		health:   health,
	}
}

// PairKey returns the canonical "A-B" key for this pipeline's pair.
func (p *Pipeline) PairKey() string { return p.pairKey }

// Run recomputes on a fixed ticker until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	log.Printf("[pipeline] %s: recomputing every %s (window=%d, cadence=%s)",
		p.pairKey, p.cfg.Interval, p.engine.Window(), p.cfg.Cadence)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[pipeline] %s: stopped", p.pairKey)
			return
		case <-ticker.C:
			if _, err := p.Cycle(ctx); err != nil {
				log.Printf("[pipeline] %s: cycle error: %v", p.pairKey, err)
			}
		}
	}
}

// Cycle performs one full recomputation and returns the published snapshot.
// Alert delivery and snapshot publication failures do not fail the cycle;
// only a store read error does.
func (p *Pipeline) Cycle(ctx context.Context) (*model.Snapshot, error) {
	start := time.Now()
	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(p.pairKey, start))

	ticksA, err := p.store.QueryTicks(p.cfg.SymbolA, p.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("query %s ticks: %w", p.cfg.SymbolA, err)
	}
	ticksB, err := p.store.QueryTicks(p.cfg.SymbolB, p.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("query %s ticks: %w", p.cfg.SymbolB, err)
	}

	barsA := resample.Resample(ticksA, p.cfg.Cadence)
	barsB := resample.Resample(ticksB, p.cfg.Cadence)

	res := p.engine.Compute(barsA, barsB, p.cfg.Hedge)

	snap := p.buildSnapshot(start, barsA, barsB, res)

	if p.detector != nil {
		if a, err := p.detector.Check(ctx, p.pairKey, snap.ZScore); err != nil {
			log.Printf("[pipeline] %s: alert persist error: %v", p.pairKey, err)
		} else if a != nil && p.prom != nil {
			p.prom.AlertsTotal.WithLabelValues(string(a.Kind)).Inc()
		}
	}

	if p.pub != nil {
		if err := p.pub.PublishSnapshot(ctx, *snap); err == nil && p.prom != nil {
			p.prom.SnapshotPublish.Inc()
		}
	}

	if p.prom != nil {
		p.prom.RecomputeDur.Observe(time.Since(start).Seconds())
		p.prom.JoinedSamples.Set(float64(res.JoinedN))
	}
	if p.health != nil {
		p.health.SetLastCycleTime(start)
	}

	return snap, nil
}

// Reset wipes the persisted ticks and alerts. The next cycle starts cold.
func (p *Pipeline) Reset() error {
	if err := p.store.Clear(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	log.Printf("[pipeline] %s: storage cleared", p.pairKey)
	return nil
}

func (p *Pipeline) buildSnapshot(at time.Time, barsA, barsB []model.Bar, res signal.Result) *model.Snapshot {
	snap := &model.Snapshot{
		PairKey:     p.pairKey,
		At:          at,
		HedgeRatio:  res.HedgeRatio,
		ZScore:      model.NoFloat(),
		Spread:      model.NoFloat(),
		Correlation: model.NoFloat(),
		JoinedN:     res.JoinedN,
		Stationary:  res.Stationarity.IsStationary,
		PValue:      res.Stationarity.PValue,
		VWAPA:       signal.VWAP(barsA),
		VWAPB:       signal.VWAP(barsB),
	}
	if n := len(res.Points); n > 0 {
		last := res.Points[n-1]
		snap.ZScore = last.ZScore
		snap.Spread = model.Float(last.Spread)
		snap.Correlation = last.Correlation
	}
	return snap
}
