package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/storage"
)

// DeliveryEditor is the edit boundary for delivery counts. Edits are
// validated here so the reconciliation engine can assume non-negative,
// fully keyed rows. A successful write is fire-and-forget: it publishes a
// change event and the next pass picks it up; nothing is merged
// incrementally into the last snapshot.
type DeliveryEditor struct {
	store storage.DeliveryStore
	bus   *bus.Bus // optional
}

// NewDeliveryEditor creates an editor. b may be nil.
func NewDeliveryEditor(store storage.DeliveryStore, b *bus.Bus) *DeliveryEditor {
	return &DeliveryEditor{store: store, bus: b}
}

// Upsert validates and stores one delivery count, overwriting any previous
// count for the same (user_scope, date, product, country).
func (e *DeliveryEditor) Upsert(ctx context.Context, rec models.DeliveryRecord) error {
	rec.Date = time.Date(rec.Date.Year(), rec.Date.Month(), rec.Date.Day(), 0, 0, 0, 0, time.UTC)

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid delivery edit: %w", err)
	}

	if err := e.store.Upsert(ctx, rec); err != nil {
		return err
	}

	if e.bus != nil {
		e.bus.Publish(bus.Event{
			Type: bus.EventDeliveryUpdate,
			Key:  rec.Key(),
		})
	}
	return nil
}
