package registry

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
	"github.com/emobix/ocpi-node/internal/mocks"
	"github.com/emobix/ocpi-node/internal/ports"
)

func newTestRegistry(t *testing.T) (*Registry, *mocks.MockCommandLog) {
	t.Helper()
	clog := mocks.NewMockCommandLog()
	return NewRegistry(clog, events.NewBus(zap.NewNop()), zap.NewNop()), clog
}

func testParty(cc, pid string, role domain.Role, token string) *domain.RemoteParty {
	key := domain.NewPartyKey(cc, pid)
	return NewRemoteParty(
		domain.NewRemotePartyID(key, role),
		[]domain.CredentialsRole{{CountryCode: key.CountryCode, PartyID: key.PartyID, Role: role}},
		[]domain.LocalAccessInfo{{AccessToken: token, Status: domain.AccessStatusAllowed}},
		nil,
		domain.PartyStatusEnabled,
	)
}

func TestAddRemotePartyRejectsDuplicate(t *testing.T) {
	r, clog := newTestRegistry(t)
	ctx := context.Background()

	p := testParty("DE", "ABC", domain.RoleCPO, "tok-1")
	if ok, err := r.AddRemoteParty(ctx, p); err != nil || !ok {
		t.Fatalf("first add: ok=%v err=%v", ok, err)
	}
	dup := testParty("DE", "ABC", domain.RoleCPO, "tok-2")
	if ok, err := r.AddRemoteParty(ctx, dup); err != nil || ok {
		t.Fatalf("duplicate add: ok=%v err=%v", ok, err)
	}
	if ok, err := r.AddRemotePartyIfNotExists(ctx, dup); err != nil || !ok {
		t.Fatalf("idempotent add: ok=%v err=%v", ok, err)
	}

	got, ok := r.GetRemoteParty(p.ID)
	if !ok || got != p {
		t.Fatal("stored instance must be the first one")
	}
	if n := len(clog.Entries(ports.LogRemoteParties)); n != 1 {
		t.Fatalf("expected 1 logged command, got %d", n)
	}
}

func TestUpdateRemotePartyIsCompareAndSwap(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	p := testParty("DE", "ABC", domain.RoleCPO, "tok-1")
	if _, err := r.AddRemoteParty(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}

	first := p.Clone()
	first.Status = domain.PartyStatusDisabled
	if ok, err := r.UpdateRemoteParty(ctx, p, first); err != nil || !ok {
		t.Fatalf("update from current snapshot: ok=%v err=%v", ok, err)
	}

	stale := p.Clone()
	if ok, err := r.UpdateRemoteParty(ctx, p, stale); err != nil || ok {
		t.Fatalf("update from stale snapshot must fail: ok=%v err=%v", ok, err)
	}

	got, _ := r.GetRemoteParty(p.ID)
	if got.Status != domain.PartyStatusDisabled {
		t.Fatalf("lost update: status=%s", got.Status)
	}
}

func TestTryGetRemotePartiesStaticToken(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	enabled := testParty("DE", "ABC", domain.RoleCPO, "tok-enabled")
	disabled := testParty("NL", "DEF", domain.RoleEMSP, "tok-disabled")
	disabled.Status = domain.PartyStatusDisabled
	for _, p := range []*domain.RemoteParty{enabled, disabled} {
		if _, err := r.AddRemoteParty(ctx, p); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if m := r.TryGetRemoteParties("tok-enabled"); len(m) != 1 || m[0].Party.ID != enabled.ID {
		t.Fatalf("expected a single match for the enabled party, got %d", len(m))
	}
	if m := r.TryGetRemoteParties("tok-disabled"); len(m) != 0 {
		t.Fatal("disabled parties must not authenticate")
	}
	if m := r.TryGetRemoteParties("unknown"); len(m) != 0 {
		t.Fatal("unknown token must not authenticate")
	}
}

func TestTryGetRemotePartiesValidityWindow(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour).UTC()
	p := testParty("DE", "ABC", domain.RoleCPO, "tok-old")
	p.LocalAccessInfos[0].NotAfter = &expired
	if _, err := r.AddRemoteParty(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}

	if m := r.TryGetRemoteParties("tok-old"); len(m) != 0 {
		t.Fatal("expired token must not authenticate")
	}
}

func TestTryGetRemotePartiesTOTP(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "test"})
	if err != nil {
		t.Fatalf("totp generate: %v", err)
	}
	secret := key.Secret()

	p := testParty("DE", "ABC", domain.RoleCPO, "")
	p.LocalAccessInfos[0].TOTP = &domain.TOTPConfig{
		SharedSecret: secret,
		ValidityTime: 30 * time.Second,
		Length:       6,
	}
	if _, err := r.AddRemoteParty(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}

	opts := totp.ValidateOpts{Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
	now := time.Now().UTC()

	// previous, current and next window codes must all match
	for _, at := range []time.Time{now.Add(-30 * time.Second), now, now.Add(30 * time.Second)} {
		code, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			t.Fatalf("code: %v", err)
		}
		if m := r.TryGetRemoteParties(code); len(m) != 1 {
			t.Fatalf("expected code for %v to match, got %d matches", at, len(m))
		}
	}

	stale, err := totp.GenerateCodeCustom(secret, now.Add(-5*time.Minute), opts)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if m := r.TryGetRemoteParties(stale); len(m) != 0 {
		t.Fatal("code outside the skew window must not match")
	}
}

func TestRemoveAccessToken(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	single := testParty("DE", "ABC", domain.RoleCPO, "tok-only")
	multi := testParty("NL", "DEF", domain.RoleEMSP, "tok-a")
	multi.LocalAccessInfos = append(multi.LocalAccessInfos, domain.LocalAccessInfo{
		AccessToken: "tok-b", Status: domain.AccessStatusAllowed,
	})
	for _, p := range []*domain.RemoteParty{single, multi} {
		if _, err := r.AddRemoteParty(ctx, p); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// the only token: party disappears entirely
	if err := r.RemoveAccessToken(ctx, "tok-only"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := r.GetRemoteParty(single.ID); ok {
		t.Fatal("party holding only the removed token must be gone")
	}

	// one of several: party stays, token is dropped
	if err := r.RemoveAccessToken(ctx, "tok-a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, ok := r.GetRemoteParty(multi.ID)
	if !ok {
		t.Fatal("party holding further tokens must survive")
	}
	if len(got.LocalAccessInfos) != 1 || got.LocalAccessInfos[0].AccessToken != "tok-b" {
		t.Fatalf("unexpected tokens after removal: %+v", got.LocalAccessInfos)
	}
}

func TestRestoreReplaysLog(t *testing.T) {
	clog := mocks.NewMockCommandLog()
	bus := events.NewBus(zap.NewNop())
	ctx := context.Background()

	first := NewRegistry(clog, bus, zap.NewNop())
	kept := testParty("DE", "ABC", domain.RoleCPO, "tok-1")
	dropped := testParty("NL", "DEF", domain.RoleEMSP, "tok-2")
	for _, p := range []*domain.RemoteParty{kept, dropped} {
		if _, err := first.AddRemoteParty(ctx, p); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := first.RemoveRemoteParty(ctx, dropped.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	second := NewRegistry(clog, bus, zap.NewNop())
	if err := second.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := second.GetRemoteParty(kept.ID); !ok {
		t.Fatal("kept party missing after replay")
	}
	if _, ok := second.GetRemoteParty(dropped.ID); ok {
		t.Fatal("removed party resurrected by replay")
	}
}

func TestNewAccessTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewAccessToken()
		if tok == "" {
			t.Fatal("empty token")
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestRegistryPublishesPartyEvents(t *testing.T) {
	clog := mocks.NewMockCommandLog()
	bus := events.NewBus(zap.NewNop())
	r := NewRegistry(clog, bus, zap.NewNop())
	ctx := context.Background()

	var got []events.Event
	bus.SubscribeAll(func(_ context.Context, evt events.Event) { got = append(got, evt) })

	p := testParty("DE", "ABC", domain.RoleCPO, "tok-1")
	if _, err := r.AddRemoteParty(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.RemoveRemoteParty(ctx, p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// a miss must stay silent
	if _, err := r.RemoveRemoteParty(ctx, p.ID); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Topic != events.TopicPartyRegistered || got[1].Topic != events.TopicPartyUnregistered {
		t.Fatalf("unexpected topics: %s, %s", got[0].Topic, got[1].Topic)
	}
	for _, evt := range got {
		if evt.EntityID != string(p.ID) || evt.Party != p.Key() {
			t.Fatalf("event misaddressed: %s %s", evt.EntityID, evt.Party)
		}
		if evt.TrackingID == "" {
			t.Fatal("event missing tracking id")
		}
	}

	entries := clog.Entries(ports.LogRemoteParties)
	if len(entries) != 2 {
		t.Fatalf("expected 2 logged commands, got %d", len(entries))
	}
	if got[0].TrackingID != entries[0].TrackingID || got[1].TrackingID != entries[1].TrackingID {
		t.Fatal("event tracking ids must match their log entries")
	}
}
