package store

import (
	"context"
	"testing"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
)

func testTariff(id string, notBefore *time.Time, at time.Time) *domain.Tariff {
	return &domain.Tariff{
		CountryCode: testKey.CountryCode,
		PartyID:     testKey.PartyID,
		ID:          domain.TariffID(id),
		Currency:    "EUR",
		NotBefore:   notBefore,
		LastUpdated: at,
	}
}

func TestTariffVersionResolution(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	jan := base.Add(-2 * 30 * 24 * time.Hour)
	mar := base.Add(-24 * time.Hour)
	future := base.Add(30 * 24 * time.Hour)

	// open-ended version plus two dated ones
	if res := s.AddTariff(ctx, testTariff("T1", nil, base)); !res.OK() {
		t.Fatalf("add open-ended: %s", res.Reason)
	}
	if res := s.AddTariff(ctx, testTariff("T1", &mar, base)); !res.OK() {
		t.Fatalf("add dated: %s", res.Reason)
	}
	if res := s.AddTariff(ctx, testTariff("T1", &future, base)); !res.OK() {
		t.Fatalf("add future: %s", res.Reason)
	}

	// before any dated version: the open-ended one
	got, ok := s.GetTariff(testKey, "T1", jan)
	if !ok || got.NotBefore != nil {
		t.Fatalf("expected the open-ended version at %v", jan)
	}
	// now: the March version
	got, ok = s.GetTariff(testKey, "T1", base)
	if !ok || got.NotBefore == nil || !got.NotBefore.Equal(mar) {
		t.Fatalf("expected the March version now, got %+v", got)
	}
	// far future: the future version
	got, ok = s.GetTariff(testKey, "T1", future.Add(time.Hour))
	if !ok || got.NotBefore == nil || !got.NotBefore.Equal(future) {
		t.Fatal("expected the future version after its effective date")
	}

	if versions := s.GetTariffVersions(testKey, "T1"); len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	// only the currently effective version surfaces in the listing
	if current := s.GetTariffs(testKey, nil); len(current) != 1 || !current[0].NotBefore.Equal(mar) {
		t.Fatalf("expected only the effective version, got %d", len(current))
	}
}

func TestAddTariffDuplicateVersion(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	if res := s.AddTariff(ctx, testTariff("T1", nil, base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}
	if res := s.AddTariff(ctx, testTariff("T1", nil, base.Add(time.Minute))); res.OK() {
		t.Fatal("same effective date must fail on Add")
	}
	if res := s.AddTariffIfNotExists(ctx, testTariff("T1", nil, base.Add(time.Minute))); res.Outcome != domain.OutcomeNoOperation {
		t.Fatalf("idempotent add: %s", res.Outcome)
	}
}

func TestAddOrUpdateTariffReplacesEqualEffectiveDate(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()
	from := base.Add(-time.Hour)

	first := testTariff("T1", &from, base)
	if res := s.AddOrUpdateTariff(ctx, first, nil); res.Outcome != domain.OutcomeCreated {
		t.Fatalf("first: %s", res.Outcome)
	}

	// same effective date, newer LastUpdated: replaces, does not add
	second := testTariff("T1", &from, base.Add(time.Minute))
	second.Currency = "SEK"
	if res := s.AddOrUpdateTariff(ctx, second, nil); res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("second: %s (%s)", res.Outcome, res.Reason)
	}
	if versions := s.GetTariffVersions(testKey, "T1"); len(versions) != 1 || versions[0].Currency != "SEK" {
		t.Fatalf("expected a single replaced version, got %d", len(versions))
	}

	// stale LastUpdated on the same effective date is a downgrade
	if res := s.AddOrUpdateTariff(ctx, testTariff("T1", &from, base.Add(-time.Minute)), nil); res.OK() {
		t.Fatal("stale write must fail")
	}
}

func TestRemoveTariffDropsAllVersions(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()
	later := base.Add(24 * time.Hour)

	if res := s.AddTariff(ctx, testTariff("T1", nil, base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}
	if res := s.AddTariff(ctx, testTariff("T1", &later, base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}

	res := s.RemoveTariff(ctx, testKey, "T1")
	if res.Outcome != domain.OutcomeRemoved || len(res.Value) != 2 {
		t.Fatalf("expected both versions removed, got %s with %d", res.Outcome, len(res.Value))
	}
	if s.TariffExists(testKey, "T1") {
		t.Fatal("tariff still present after remove")
	}
	if res := s.RemoveTariff(ctx, testKey, "T1"); res.OK() {
		t.Fatal("removing a missing tariff must fail")
	}
}

func TestPatchTariffKeepsEffectiveDate(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()
	from := base.Add(-time.Hour)

	if res := s.AddTariff(ctx, testTariff("T1", &from, base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}

	patch := []byte(`{"currency":"NOK","last_updated":"` + base.Add(time.Minute).Format(time.RFC3339Nano) + `"}`)
	res := s.PatchTariff(ctx, testKey, "T1", patch, nil)
	if res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("patch: %s (%s)", res.Outcome, res.Reason)
	}
	if res.Value.Currency != "NOK" {
		t.Fatalf("patch not applied: %q", res.Value.Currency)
	}
	if res.Value.NotBefore == nil || !res.Value.NotBefore.Equal(from) {
		t.Fatal("patch must not move the effective date")
	}
}
