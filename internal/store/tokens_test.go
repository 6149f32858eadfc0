package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

func testToken(id string, at time.Time) *domain.TokenStatus {
	return &domain.TokenStatus{
		Token: domain.Token{
			CountryCode: testKey.CountryCode,
			PartyID:     testKey.PartyID,
			ID:          domain.TokenID(id),
			Type:        domain.TokenTypeRFID,
			ContractID:  "DE-ABC-C00001",
			Valid:       true,
			LastUpdated: at,
		},
		Status: domain.AllowedTypeAllowed,
	}
}

func TestTokenLifecycle(t *testing.T) {
	s, bus := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	counts := countTopics(bus, events.TopicTokenAdded, events.TopicTokenStatusChanged, events.TopicTokenRemoved)

	if res := s.AddToken(ctx, testToken("TOK1", base)); res.Outcome != domain.OutcomeCreated {
		t.Fatalf("add: %s (%s)", res.Outcome, res.Reason)
	}
	if res := s.AddToken(ctx, testToken("TOK1", base)); res.OK() {
		t.Fatal("second add must fail")
	}

	blocked := testToken("TOK1", base.Add(time.Minute))
	blocked.Status = domain.AllowedTypeBlocked
	if res := s.UpdateToken(ctx, blocked, nil); res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("update: %s (%s)", res.Outcome, res.Reason)
	}

	got, found, err := s.GetToken(ctx, testKey, "TOK1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Status != domain.AllowedTypeBlocked {
		t.Fatalf("status change lost: %s", got.Status)
	}

	if res := s.RemoveToken(ctx, testKey, "TOK1"); res.Outcome != domain.OutcomeRemoved {
		t.Fatalf("remove: %s", res.Outcome)
	}

	if *counts[events.TopicTokenAdded] != 1 ||
		*counts[events.TopicTokenStatusChanged] != 1 ||
		*counts[events.TopicTokenRemoved] != 1 {
		t.Fatalf("unexpected notification counts: %d/%d/%d",
			*counts[events.TopicTokenAdded],
			*counts[events.TopicTokenStatusChanged],
			*counts[events.TopicTokenRemoved])
	}
}

func TestGetTokenFallback(t *testing.T) {
	base := time.Now().UTC()
	external := testToken("COLD1", base)
	var calls int

	s, _ := newTestStore(t, Options{
		OnVerifyToken: func(_ context.Context, key domain.PartyKey, id domain.TokenID) (*domain.TokenStatus, error) {
			calls++
			if id == "COLD1" {
				return external, nil
			}
			return nil, nil
		},
	})
	ctx := context.Background()

	// warm entry: fallback not consulted
	if res := s.AddToken(ctx, testToken("WARM1", base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}
	if _, found, err := s.GetToken(ctx, testKey, "WARM1"); err != nil || !found {
		t.Fatalf("warm get: found=%v err=%v", found, err)
	}
	if calls != 0 {
		t.Fatalf("fallback consulted for a warm entry: %d", calls)
	}

	// cold entry: served by the fallback
	got, found, err := s.GetToken(ctx, testKey, "COLD1")
	if err != nil || !found || got != external {
		t.Fatalf("cold get: found=%v err=%v", found, err)
	}

	// the fallback result is not cached back
	if s.TokenExists(testKey, "COLD1") {
		t.Fatal("fallback result must not be cached into the map")
	}
	if _, _, err := s.GetToken(ctx, testKey, "COLD1"); err != nil {
		t.Fatalf("second cold get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the fallback on every cold get, got %d calls", calls)
	}

	// authoritative miss
	if _, found, err := s.GetToken(ctx, testKey, "NOPE"); err != nil || found {
		t.Fatalf("miss: found=%v err=%v", found, err)
	}
}

func TestGetTokenFallbackError(t *testing.T) {
	s, _ := newTestStore(t, Options{
		OnVerifyToken: func(context.Context, domain.PartyKey, domain.TokenID) (*domain.TokenStatus, error) {
			return nil, errors.New("verifier unreachable")
		},
	})

	if _, found, err := s.GetToken(context.Background(), testKey, "ANY"); err == nil || found {
		t.Fatalf("expected surfaced error, found=%v err=%v", found, err)
	}
}

func TestPatchTokenPreservesIdentity(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	base := time.Now().UTC()

	if res := s.AddToken(ctx, testToken("TOK1", base)); !res.OK() {
		t.Fatalf("add: %s", res.Reason)
	}

	patch := []byte(`{"valid":false,"uid":"EVIL","last_updated":"` + base.Add(time.Minute).Format(time.RFC3339Nano) + `"}`)
	res := s.PatchToken(ctx, testKey, "TOK1", patch, nil)
	if res.Outcome != domain.OutcomeUpdated {
		t.Fatalf("patch: %s (%s)", res.Outcome, res.Reason)
	}
	if res.Value.Token.Valid {
		t.Fatal("patch not applied")
	}
	if res.Value.Token.ID != "TOK1" {
		t.Fatalf("identity changed: %s", res.Value.Token.ID)
	}
}
