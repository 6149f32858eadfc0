package store

import (
	"context"
	"testing"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

func testCDR(id string, at time.Time) *domain.CDR {
	return &domain.CDR{
		CountryCode:   testKey.CountryCode,
		PartyID:       testKey.PartyID,
		ID:            domain.CDRID(id),
		StartDateTime: at.Add(-time.Hour),
		EndDateTime:   at,
		Currency:      "EUR",
		LastUpdated:   at,
	}
}

func TestAddCDRNeverReplaces(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	if res := s.AddCDR(ctx, testCDR("CDR1", base)); res.Outcome != domain.OutcomeCreated {
		t.Fatalf("add: %s (%s)", res.Outcome, res.Reason)
	}

	// a plain add under the same id never replaces the record
	if res := s.AddCDR(ctx, testCDR("CDR1", base.Add(time.Minute))); res.OK() {
		t.Fatal("re-adding an existing CDR must fail")
	}
	res := s.AddCDRIfNotExists(ctx, testCDR("CDR1", base.Add(time.Minute)))
	if res.Outcome != domain.OutcomeNoOperation {
		t.Fatalf("idempotent add: %s", res.Outcome)
	}
	if !res.Value.LastUpdated.Equal(base) {
		t.Fatal("stored CDR must stay untouched")
	}

	got, found, err := s.GetCDR(ctx, testKey, "CDR1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !got.LastUpdated.Equal(base) {
		t.Fatal("unexpected CDR content")
	}

	if res := s.RemoveCDR(ctx, testKey, "CDR1"); res.Outcome != domain.OutcomeRemoved {
		t.Fatalf("remove: %s", res.Outcome)
	}
	if s.CDRExists(testKey, "CDR1") {
		t.Fatal("CDR still present after remove")
	}
}

func TestCDRLifecycle(t *testing.T) {
	s, bus := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	counts := countTopics(bus, events.TopicCDRAdded, events.TopicCDRChanged, events.TopicCDRRemoved)

	if res := s.AddOrUpdateCDR(ctx, testCDR("CDR1", base), nil); res.Outcome != domain.OutcomeCreated {
		t.Fatalf("create: %s (%s)", res.Outcome, res.Reason)
	}

	corrected := testCDR("CDR1", base.Add(time.Minute))
	corrected.TotalCost = 42.5
	if res := s.UpdateCDR(ctx, corrected, nil); res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("update: %s (%s)", res.Outcome, res.Reason)
	}

	// stale correction rejected
	if res := s.UpdateCDR(ctx, testCDR("CDR1", base), nil); res.OK() {
		t.Fatal("stale update must fail")
	}

	got, found, err := s.GetCDR(ctx, testKey, "CDR1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.TotalCost != 42.5 {
		t.Fatalf("correction lost: %v", got.TotalCost)
	}

	if res := s.UpdateCDR(ctx, testCDR("CDR2", base), nil); res.OK() {
		t.Fatal("updating an unknown CDR must fail")
	}

	if res := s.RemoveCDR(ctx, testKey, "CDR1"); res.Outcome != domain.OutcomeRemoved {
		t.Fatalf("remove: %s", res.Outcome)
	}

	if *counts[events.TopicCDRAdded] != 1 ||
		*counts[events.TopicCDRChanged] != 1 ||
		*counts[events.TopicCDRRemoved] != 1 {
		t.Fatalf("unexpected notification counts: %d/%d/%d",
			*counts[events.TopicCDRAdded],
			*counts[events.TopicCDRChanged],
			*counts[events.TopicCDRRemoved])
	}
}

func TestPatchCDRPreservesIdentity(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	if res := s.AddCDR(ctx, testCDR("CDR1", base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}

	patch := []byte(`{"total_cost":13.37,"id":"EVIL","last_updated":"` + base.Add(time.Minute).Format(time.RFC3339Nano) + `"}`)
	res := s.PatchCDR(ctx, testKey, "CDR1", patch, nil)
	if res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("patch: %s (%s)", res.Outcome, res.Reason)
	}
	if res.Value.TotalCost != 13.37 {
		t.Fatalf("patch not applied: %v", res.Value.TotalCost)
	}
	if res.Value.ID != "CDR1" {
		t.Fatalf("identity changed: %s", res.Value.ID)
	}
}
