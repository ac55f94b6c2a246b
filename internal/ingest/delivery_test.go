package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/storage"
)

func TestDeliveryUpsert(t *testing.T) {
	store := storage.NewInMemoryDeliveryStore()
	b := bus.New()
	defer b.Close()
	events := b.Subscribe()

	e := NewDeliveryEditor(store, b)
	ctx := context.Background()

	rec := models.DeliveryRecord{
		UserScope: "acct-1",
		Date:      time.Date(2026, 3, 1, 14, 25, 0, 0, time.UTC),
		Product:   "VIRAMAX",
		Country:   "RDC",
		Count:     10,
	}
	if err := e.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	stored, err := store.ListByRange(ctx, "acct-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d records, want 1", len(stored))
	}
	// Date is truncated to midnight UTC before storage.
	if stored[0].Date != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("stored date = %v, want midnight UTC", stored[0].Date)
	}

	select {
	case ev := <-events:
		if ev.Type != bus.EventDeliveryUpdate {
			t.Errorf("event type = %s, want delivery_update", ev.Type)
		}
		if ev.Key != rec.Key() {
			t.Errorf("event key = %+v, want %+v", ev.Key, rec.Key())
		}
	default:
		t.Error("no delivery update event published")
	}
}

func TestDeliveryUpsertOverwrites(t *testing.T) {
	store := storage.NewInMemoryDeliveryStore()
	e := NewDeliveryEditor(store, nil)
	ctx := context.Background()

	rec := models.DeliveryRecord{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Product: "VIRAMAX", Country: "RDC", Count: 5}
	if err := e.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Count = 12
	if err := e.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	stored, _ := store.ListByRange(ctx, "", time.Time{}, time.Time{})
	if len(stored) != 1 || stored[0].Count != 12 {
		t.Errorf("stored = %+v, want single row with count 12", stored)
	}
}

func TestDeliveryUpsertValidation(t *testing.T) {
	e := NewDeliveryEditor(storage.NewInMemoryDeliveryStore(), nil)
	ctx := context.Background()
	base := models.DeliveryRecord{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Product: "VIRAMAX", Country: "RDC", Count: 1}

	bad := base
	bad.Count = -1
	if err := e.Upsert(ctx, bad); err == nil {
		t.Error("expected error for negative count")
	}

	bad = base
	bad.Product = ""
	if err := e.Upsert(ctx, bad); err == nil {
		t.Error("expected error for missing product")
	}

	bad = base
	bad.Country = ""
	if err := e.Upsert(ctx, bad); err == nil {
		t.Error("expected error for missing country")
	}
}
