package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/mocks"
)

func TestPublishDeliversToTopicAndAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	var topical, everything []string
	bus.Subscribe(TopicLocationAdded, func(_ context.Context, evt Event) {
		topical = append(topical, evt.Topic)
	})
	bus.SubscribeAll(func(_ context.Context, evt Event) {
		everything = append(everything, evt.Topic)
	})

	bus.Publish(ctx, Event{Topic: TopicLocationAdded})
	bus.Publish(ctx, Event{Topic: TopicTariffChanged})

	if len(topical) != 1 || topical[0] != TopicLocationAdded {
		t.Fatalf("topic subscriber got %v", topical)
	}
	if len(everything) != 2 {
		t.Fatalf("catch-all subscriber got %v", everything)
	}
}

func TestPublishSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	var delivered bool
	bus.Subscribe(TopicTokenAdded, func(_ context.Context, _ Event) {
		panic("subscriber bug")
	})
	bus.Subscribe(TopicTokenAdded, func(_ context.Context, _ Event) {
		delivered = true
	})

	bus.Publish(ctx, Event{Topic: TopicTokenAdded})
	if !delivered {
		t.Fatal("panic in one subscriber must not starve the next")
	}
}

func TestPublishForwardsSerializedEventsToSinks(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	sink := &mocks.MockEventSink{}
	bus.AddSink(sink)

	key := domain.NewPartyKey("DE", "ABC")
	bus.Publish(ctx, Event{Topic: TopicSessionAdded, Party: key, EntityID: "s-1"})

	published := sink.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 sink message, got %d", len(published))
	}
	if published[0].Subject != "ocpi.events."+TopicSessionAdded {
		t.Fatalf("unexpected subject %q", published[0].Subject)
	}
	if len(published[0].Data) == 0 {
		t.Fatal("sink message carries no payload")
	}
}

func TestPublishToleratesFailingSink(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	failing := &mocks.MockEventSink{PublishFunc: func(string, []byte) error {
		return errors.New("broker down")
	}}
	healthy := &mocks.MockEventSink{}
	bus.AddSink(failing)
	bus.AddSink(healthy)

	bus.Publish(ctx, Event{Topic: TopicCDRAdded})
	if len(healthy.Published()) != 1 {
		t.Fatal("failing sink must not stop delivery to the next sink")
	}
}
