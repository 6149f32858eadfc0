// Package events delivers entity-change notifications. Delivery is
// synchronous and in-process; a failing or panicking subscriber is logged
// and never fails the mutation that fired the event. Serialized copies are
// additionally forwarded to optional out-of-process sinks (NATS).
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ports"
)

// Topics published by the party store and the registry.
const (
	TopicLocationAdded      = "location.added"
	TopicLocationChanged    = "location.changed"
	TopicLocationRemoved    = "location.removed"
	TopicEVSEAdded          = "evse.added"
	TopicEVSEChanged        = "evse.changed"
	TopicEVSERemoved        = "evse.removed"
	TopicEVSEStatusChanged  = "evse.status_changed"
	TopicConnectorAdded     = "connector.added"
	TopicConnectorChanged   = "connector.changed"
	TopicConnectorRemoved   = "connector.removed"
	TopicTariffAdded        = "tariff.added"
	TopicTariffChanged      = "tariff.changed"
	TopicTariffRemoved      = "tariff.removed"
	TopicSessionAdded       = "session.added"
	TopicSessionChanged     = "session.changed"
	TopicSessionRemoved     = "session.removed"
	TopicTokenAdded         = "token.added"
	TopicTokenStatusChanged = "token.status_changed"
	TopicTokenRemoved       = "token.removed"
	TopicCDRAdded           = "cdr.added"
	TopicCDRChanged         = "cdr.changed"
	TopicCDRRemoved         = "cdr.removed"
	TopicPartyRegistered    = "party.registered"
	TopicPartyUnregistered  = "party.unregistered"
)

// Event is one entity-change notification.
type Event struct {
	Topic      string          `json:"topic"`
	Party      domain.PartyKey `json:"party,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	TrackingID string          `json:"tracking_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    any             `json:"payload,omitempty"`
}

// Handler receives events synchronously. Panics are recovered by the bus.
type Handler func(ctx context.Context, evt Event)

type Bus struct {
	log   *zap.Logger
	mu    sync.RWMutex
	subs  map[string][]Handler
	all   []Handler
	sinks []ports.EventSink
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for one topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// AddSink attaches an out-of-process sink (e.g. a NATS publisher).
func (b *Bus) AddSink(sink ports.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish delivers the event to all matching handlers, then to sinks.
// Handler panics and sink errors are logged and swallowed.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := append(append([]Handler(nil), b.subs[evt.Topic]...), b.all...)
	sinks := append([]ports.EventSink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, evt)
	}

	if len(sinks) == 0 {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("Failed to serialize event", zap.String("topic", evt.Topic), zap.Error(err))
		return
	}
	for _, sink := range sinks {
		if err := sink.Publish("ocpi.events."+evt.Topic, data); err != nil {
			b.log.Error("Event sink publish failed",
				zap.String("topic", evt.Topic),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked",
				zap.String("topic", evt.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, evt)
}
