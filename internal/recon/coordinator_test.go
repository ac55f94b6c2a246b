package recon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/attribution"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/storage"
	"go.uber.org/zap"
)

func testStores(t *testing.T) Stores {
	t.Helper()
	ctx := context.Background()

	spend := storage.NewInMemorySpendStore()
	if err := spend.SaveBatch(ctx, []models.SpendRecord{
		{ID: "1", Date: day(1), CampaignLabel: "rdc-viramax-01", AmountNative: 100, Leads: 20},
	}); err != nil {
		t.Fatal(err)
	}

	deliveries := storage.NewInMemoryDeliveryStore()
	if err := deliveries.Upsert(ctx, models.DeliveryRecord{
		Date: day(1), Product: "VIRAMAX", Country: "RDC", Count: 10,
	}); err != nil {
		t.Fatal(err)
	}

	rateRepo := storage.NewInMemoryRateRepo()
	if err := rateRepo.Upsert(ctx, models.ExchangeRate{Date: day(1), Rate: 10}); err != nil {
		t.Fatal(err)
	}

	return Stores{
		Spend:      spend,
		Deliveries: deliveries,
		Rates:      rateRepo,
		Finance:    storage.NewInMemoryFinanceStore(),
		Products:   storage.NewInMemoryProductRepo(),
	}
}

func testCoordinator(t *testing.T, stores Stores) *Coordinator {
	t.Helper()
	classifier := attribution.NewClassifier(attribution.DefaultCountryTable())
	return NewCoordinator(Config{DebounceWindow: 10 * time.Millisecond}, stores, classifier, nil, nil, nil, zap.NewNop())
}

func TestRunPassPublishesSnapshot(t *testing.T) {
	c := testCoordinator(t, testStores(t))

	if c.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", c.State())
	}
	if err := c.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StatePublished {
		t.Errorf("state = %s, want published", c.State())
	}

	snap := c.Snapshot()
	if snap == nil {
		t.Fatal("no snapshot after successful pass")
	}
	if snap.PassID == "" {
		t.Error("snapshot has no pass id")
	}
	if len(snap.Records) != 1 {
		t.Fatalf("snapshot has %d records, want 1", len(snap.Records))
	}
	r := snap.Records[0]
	if r.SpendConverted != 1000 || r.DeliveryCount != 10 || r.Tier != models.TierProfitable {
		t.Errorf("reconciled record = %+v", r)
	}
	if !snap.ConservationOK {
		t.Errorf("conservation flagged, diff = %v", snap.ConservationDiff)
	}
}

func TestRunPassFetchFailureKeepsSnapshot(t *testing.T) {
	stores := testStores(t)
	c := testCoordinator(t, stores)

	if err := c.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	published := c.Snapshot()

	c.stores.Spend = failingSpendStore{}
	if err := c.RunPass(context.Background()); err == nil {
		t.Fatal("expected error from failing store")
	}

	if got := c.Snapshot(); got != published {
		t.Error("failed pass replaced the published snapshot")
	}
}

func TestRunPassStaleDiscard(t *testing.T) {
	stores := testStores(t)
	blocking := &blockingSpendStore{
		inner:   stores.Spend,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	stores.Spend = blocking
	c := testCoordinator(t, stores)

	done := make(chan error, 1)
	go func() { done <- c.RunPass(context.Background()) }()

	<-blocking.entered
	// A newer pass starts while the first is mid-fetch.
	c.generation.Add(1)
	close(blocking.release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c.Snapshot() != nil {
		t.Error("stale pass was published")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle after discarded first pass", c.State())
	}
}

func TestRunCoalescesTriggers(t *testing.T) {
	stores := testStores(t)
	counting := &countingSpendStore{inner: stores.Spend}
	stores.Spend = counting
	c := testCoordinator(t, stores)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < 5; i++ {
		c.Trigger("delivery_update")
	}

	deadline := time.Now().Add(time.Second)
	for c.Snapshot() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Snapshot() == nil {
		t.Fatal("no snapshot published")
	}

	// Let any trailing coalesced pass finish before counting.
	time.Sleep(100 * time.Millisecond)
	if n := counting.calls.Load(); n > 2 {
		t.Errorf("5 triggers caused %d passes, want at most 2", n)
	}
}

func TestSetDateRangeFiltersSnapshot(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()
	if err := stores.Spend.SaveBatch(ctx, []models.SpendRecord{
		{ID: "2", Date: day(20), CampaignLabel: "tg-slimfit", AmountNative: 30, Leads: 3},
	}); err != nil {
		t.Fatal(err)
	}
	c := testCoordinator(t, stores)

	c.mu.Lock()
	c.from, c.to = day(15), day(25)
	c.mu.Unlock()

	if err := c.RunPass(ctx); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if len(snap.Records) != 1 {
		t.Fatalf("snapshot has %d records, want 1 inside range", len(snap.Records))
	}
	if snap.Records[0].Key.Product != "SLIMFIT" {
		t.Errorf("record = %+v, want SLIMFIT row", snap.Records[0])
	}
}

// test doubles

type failingSpendStore struct{}

func (failingSpendStore) SaveBatch(context.Context, []models.SpendRecord) error { return nil }
func (failingSpendStore) ListByRange(context.Context, string, time.Time, time.Time) ([]models.SpendRecord, error) {
	return nil, errors.New("store unavailable")
}

type blockingSpendStore struct {
	inner   storage.SpendStore
	entered chan struct{}
	release chan struct{}
	once    atomic.Bool
}

func (b *blockingSpendStore) SaveBatch(ctx context.Context, records []models.SpendRecord) error {
	return b.inner.SaveBatch(ctx, records)
}

func (b *blockingSpendStore) ListByRange(ctx context.Context, scope string, from, to time.Time) ([]models.SpendRecord, error) {
	if b.once.CompareAndSwap(false, true) {
		close(b.entered)
		<-b.release
	}
	return b.inner.ListByRange(ctx, scope, from, to)
}

type countingSpendStore struct {
	inner storage.SpendStore
	calls atomic.Int64
}

func (c *countingSpendStore) SaveBatch(ctx context.Context, records []models.SpendRecord) error {
	return c.inner.SaveBatch(ctx, records)
}

func (c *countingSpendStore) ListByRange(ctx context.Context, scope string, from, to time.Time) ([]models.SpendRecord, error) {
	c.calls.Add(1)
	return c.inner.ListByRange(ctx, scope, from, to)
}
