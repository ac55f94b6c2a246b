package bus

import (
	"sync"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// EventType identifies the kind of upstream data change.
type EventType string

const (
	EventDeliveryUpdate    EventType = "delivery_update"
	EventAttributionUpdate EventType = "attribution_update"
	EventSpendImport       EventType = "spend_import"
	EventRateChange        EventType = "rate_change"
	EventProductUpdate     EventType = "product_update"
)

// Event is one change notification. Key is set when the change concerns a
// single attribution key; the coordinator treats any event as a trigger
// regardless.
type Event struct {
	Type      EventType             `json:"type"`
	Key       models.AttributionKey `json:"key,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Bus is an in-process typed publish/subscribe channel between data-change
// publishers and the reconciliation coordinator. Publishing never blocks:
// a subscriber that has fallen behind misses intermediate events, which is
// harmless because any event only means "recompute".
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
