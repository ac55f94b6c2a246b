package recon

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tidemetrics/adrecon/internal/attribution"
	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/metrics"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/rates"
	"github.com/tidemetrics/adrecon/internal/storage"
	"go.uber.org/zap"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateComputing State = "computing"
	StatePublished State = "published"
)

// Snapshot is one complete, immutable reconciliation result. Consumers
// always receive a full snapshot, never a partial one.
type Snapshot struct {
	PassID      string    `json:"pass_id"`
	GeneratedAt time.Time `json:"generated_at"`
	From        time.Time `json:"from,omitempty"`
	To          time.Time `json:"to,omitempty"`

	Records []models.ReconciledRecord  `json:"records"`
	Rollups []models.ProductRollup     `json:"rollups"`
	Daily   []models.ReconciledRecord  `json:"daily"`

	Unclassified     models.UnclassifiedSummary `json:"unclassified"`
	ConservationOK   bool                       `json:"conservation_ok"`
	ConservationDiff float64                    `json:"conservation_diff"`
}

// Stores bundles the read side the coordinator fetches from on each pass.
type Stores struct {
	Spend      storage.SpendStore
	Deliveries storage.DeliveryStore
	Rates      storage.RateRepo
	Finance    storage.FinanceStore
	Products   storage.ProductRepo
}

// Config tunes one coordinator.
type Config struct {
	UserScope      string
	DebounceWindow time.Duration
	DefaultRate    float64
	SnapshotTTL    time.Duration
}

const snapshotCacheKey = "adrecon:snapshot:"

// Coordinator owns the reconciliation state machine
// (idle -> computing -> published). All mutable state is single-owner: the
// run loop is the only writer, so no locks are needed beyond the snapshot
// handoff. Triggers arriving while a pass is computing are coalesced into
// exactly one trailing pass.
type Coordinator struct {
	cfg        Config
	stores     Stores
	classifier *attribution.Classifier
	aggregator *attribution.Aggregator
	logger     *zap.Logger
	metrics    *metrics.Metrics
	cache      *redis.Client // optional snapshot cache

	events   <-chan bus.Event
	triggers chan bus.EventType

	generation atomic.Uint64

	mu       sync.RWMutex
	state    State
	snapshot *Snapshot
	from, to time.Time
}

// NewCoordinator wires a coordinator. cache may be nil; b may be nil when
// no change-notification bus exists (tests).
func NewCoordinator(cfg Config, stores Stores, classifier *attribution.Classifier, b *bus.Bus, cache *redis.Client, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 750 * time.Millisecond
	}
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = rates.DefaultRate
	}

	c := &Coordinator{
		cfg:        cfg,
		stores:     stores,
		classifier: classifier,
		aggregator: attribution.NewAggregator(classifier),
		logger:     logger,
		metrics:    m,
		cache:      cache,
		triggers:   make(chan bus.EventType, 64),
		state:      StateIdle,
	}
	if b != nil {
		c.events = b.Subscribe()
	}
	return c
}

// Run drives the coordinator until ctx is cancelled. Each recomputation is
// a discrete task; the only suspension points are the store reads.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		// Wait for the first trigger.
		select {
		case <-ctx.Done():
			return
		case t := <-c.triggers:
			c.countTrigger(string(t))
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.countTrigger(string(ev.Type))
		}

		// Debounce: collect trailing triggers into this pass.
		c.coalesce(ctx, c.cfg.DebounceWindow)

		if err := c.RunPass(ctx); err != nil {
			c.logger.Warn("reconciliation pass aborted, keeping last snapshot", zap.Error(err))
		}

		// Triggers that arrived mid-pass fold into one follow-up pass,
		// not one per signal.
		if n := c.drainTriggers(); n > 0 {
			select {
			case c.triggers <- bus.EventType("coalesced"):
			default:
			}
		}
	}
}

// Trigger requests a recomputation. Never blocks.
func (c *Coordinator) Trigger(t bus.EventType) {
	select {
	case c.triggers <- t:
	default:
		if c.metrics != nil {
			c.metrics.CoalescedTriggers.Inc()
		}
	}
}

// SetDateRange changes the reconciliation window and triggers a pass.
func (c *Coordinator) SetDateRange(from, to time.Time) {
	c.mu.Lock()
	c.from, c.to = from, to
	c.mu.Unlock()

	c.Trigger(bus.EventType("date_range_change"))
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the last published snapshot, or nil before the first
// successful pass. The returned value is never mutated afterwards.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// RunPass executes one full reconciliation pass. A completed pass is
// discarded without publishing if a newer pass started while it ran, so
// the published snapshot always reflects the most recently completed pass,
// never an interleaving of two.
func (c *Coordinator) RunPass(ctx context.Context) error {
	gen := c.generation.Add(1)
	passID := uuid.NewString()
	started := time.Now()

	c.setState(StateComputing)
	if c.metrics != nil {
		c.metrics.PassesStarted.Inc()
	}

	c.mu.RLock()
	from, to := c.from, c.to
	c.mu.RUnlock()

	snap, err := c.compute(ctx, passID, from, to)
	if err != nil {
		c.setState(StateIdle)
		if c.metrics != nil {
			c.metrics.PassesAborted.WithLabelValues("fetch_failure").Inc()
		}
		return err
	}

	if c.generation.Load() != gen {
		if c.metrics != nil {
			c.metrics.PassesDiscarded.Inc()
		}
		c.logger.Debug("discarding stale pass", zap.String("pass_id", passID))
		c.mu.Lock()
		if c.snapshot != nil {
			c.state = StatePublished
		} else {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return nil
	}

	c.publish(snap)

	if c.metrics != nil {
		c.metrics.RecordPassPublished(len(snap.Records), time.Since(started))
		c.metrics.RecordUnclassified(snap.Unclassified.Count, snap.Unclassified.TotalSpend)
		if !snap.ConservationOK {
			c.metrics.ConservationMismatches.Inc()
		}
	}

	c.logger.Info("reconciliation pass published",
		zap.String("pass_id", passID),
		zap.Int("records", len(snap.Records)),
		zap.Duration("latency", time.Since(started)),
	)
	return nil
}

// compute fetches all inputs and derives the snapshot. Pure given the
// fetched data: all reference tables are explicit snapshots.
func (c *Coordinator) compute(ctx context.Context, passID string, from, to time.Time) (*Snapshot, error) {
	spend, err := c.stores.Spend.ListByRange(ctx, c.cfg.UserScope, from, to)
	if err != nil {
		return nil, err
	}
	deliveries, err := c.stores.Deliveries.ListByRange(ctx, c.cfg.UserScope, from, to)
	if err != nil {
		return nil, err
	}
	recorded, err := c.stores.Rates.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	finance, err := c.stores.Finance.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	products, err := c.stores.Products.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	resolver := rates.NewResolverWithDefault(recorded, finance, c.cfg.DefaultRate)

	catalog := make(Catalog, len(products))
	for _, p := range products {
		catalog[p.Name] = p
	}

	agg := c.aggregator.Aggregate(spend, resolver)
	diff, ok := attribution.CheckConservation(spend, agg)
	if !ok {
		c.logger.Warn("spend conservation mismatch",
			zap.Float64("diff", diff),
			zap.String("pass_id", passID),
		)
	}

	reconciler := NewReconciler(catalog, resolver)
	records := reconciler.Reconcile(agg, deliveries)
	daily := reconciler.ReconcileDaily(agg, deliveries)

	return &Snapshot{
		PassID:           passID,
		GeneratedAt:      time.Now().UTC(),
		From:             from,
		To:               to,
		Records:          records,
		Rollups:          RollupByProduct(records),
		Daily:            daily,
		Unclassified:     c.classifier.Summarize(spend),
		ConservationOK:   ok,
		ConservationDiff: diff,
	}, nil
}

func (c *Coordinator) publish(snap *Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.state = StatePublished
	c.mu.Unlock()

	if c.cache != nil {
		// Best effort: a cold cache only costs the next reader a fetch.
		if data, err := json.Marshal(snap); err == nil {
			ttl := c.cfg.SnapshotTTL
			if ttl <= 0 {
				ttl = time.Hour
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.cache.Set(ctx, snapshotCacheKey+c.cfg.UserScope, data, ttl).Err(); err != nil {
				c.logger.Debug("snapshot cache write failed", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) countTrigger(t string) {
	if c.metrics != nil {
		c.metrics.Triggers.WithLabelValues(t).Inc()
	}
}

// coalesce soaks up triggers for one debounce window.
func (c *Coordinator) coalesce(ctx context.Context, window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-c.triggers:
			if c.metrics != nil {
				c.metrics.CoalescedTriggers.Inc()
			}
		case _, ok := <-c.events:
			if !ok {
				return
			}
			if c.metrics != nil {
				c.metrics.CoalescedTriggers.Inc()
			}
		}
	}
}

func (c *Coordinator) drainTriggers() int {
	n := 0
	for {
		select {
		case <-c.triggers:
			n++
		default:
			return n
		}
	}
}
