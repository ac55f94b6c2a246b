package bus

import (
	"testing"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(Event{Type: EventDeliveryUpdate, Key: models.AttributionKey{Product: "VIRAMAX", Country: "RDC"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != EventDeliveryUpdate {
				t.Errorf("event type = %s, want delivery_update", ev.Type)
			}
			if ev.Key.Product != "VIRAMAX" {
				t.Errorf("event key = %+v", ev.Key)
			}
			if ev.Timestamp.IsZero() {
				t.Error("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	defer b.Close()

	ch := b.Subscribe()

	// Overfill the subscriber buffer; extra events are dropped, not queued.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: EventSpendImport})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if len(ch) != cap(ch) {
		t.Errorf("subscriber buffer holds %d, want full %d", len(ch), cap(ch))
	}
}

func TestCloseEndsSubscribers(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after Close")
	}

	// Publishing after Close is a no-op, not a panic.
	b.Publish(Event{Type: EventRateChange})
}
