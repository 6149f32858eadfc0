package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
	"github.com/emobix/ocpi-node/internal/mocks"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/registry"
)

const (
	ownVersionsURL    = "https://cpo.example/ocpi/versions"
	remoteVersionsURL = "https://emsp.example/ocpi/versions"
)

var ownRoles = []domain.CredentialsRole{{
	CountryCode:     "DE",
	PartyID:         "EMX",
	Role:            domain.RoleCPO,
	BusinessDetails: domain.BusinessDetails{Name: "eMobix Charging"},
}}

func happyClient() *mocks.MockVersionsClient {
	return &mocks.MockVersionsClient{
		GetVersionsFunc: func(_ context.Context, url, token string) ([]domain.VersionInformation, error) {
			return []domain.VersionInformation{
				{Version: "2.1.1", URL: url + "/2.1.1"},
				{Version: domain.VersionOCPI221, URL: url + "/2.2.1"},
			}, nil
		},
		GetVersionDetailsFunc: func(_ context.Context, url, token string) (*domain.VersionDetails, error) {
			return &domain.VersionDetails{
				Version: domain.VersionOCPI221,
				Endpoints: []domain.Endpoint{
					{Identifier: domain.ModuleCredentials, Role: domain.InterfaceReceiver, URL: "https://emsp.example/ocpi/2.2.1/credentials"},
					{Identifier: domain.ModuleTokens, Role: domain.InterfaceSender, URL: "https://emsp.example/ocpi/2.2.1/tokens"},
				},
			}, nil
		},
	}
}

func newTestService(t *testing.T, client *mocks.MockVersionsClient) (*Service, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry(mocks.NewMockCommandLog(), events.NewBus(zap.NewNop()), zap.NewNop())
	return NewService(reg, client, ownVersionsURL, ownRoles, zap.NewNop()), reg
}

func seedParty(t *testing.T, reg *registry.Registry, tokenA string, registered bool) *domain.RemoteParty {
	t.Helper()
	key := domain.NewPartyKey("NL", "MSP")
	local := domain.LocalAccessInfo{AccessToken: tokenA, Status: domain.AccessStatusAllowed}
	if registered {
		local.VersionsURL = remoteVersionsURL
	}
	party := registry.NewRemoteParty(
		domain.NewRemotePartyID(key, domain.RoleEMSP),
		[]domain.CredentialsRole{{CountryCode: key.CountryCode, PartyID: key.PartyID, Role: domain.RoleEMSP}},
		[]domain.LocalAccessInfo{local},
		nil,
		domain.PartyStatusEnabled,
	)
	if ok, err := reg.AddRemoteParty(context.Background(), party); err != nil || !ok {
		t.Fatalf("seed party: ok=%v err=%v", ok, err)
	}
	return party
}

func authMatch(t *testing.T, reg *registry.Registry, token string) registry.Match {
	t.Helper()
	matches := reg.TryGetRemoteParties(token)
	if len(matches) != 1 {
		t.Fatalf("expected one match for %q, got %d", token, len(matches))
	}
	return matches[0]
}

func counterpartyBody(token string) domain.Credentials {
	return domain.Credentials{
		Token: token,
		URL:   remoteVersionsURL,
		Roles: []domain.CredentialsRole{{CountryCode: "NL", PartyID: "MSP", Role: domain.RoleEMSP}},
	}
}

func TestPostCredentialsHandshake(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	ctx := context.Background()
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.PostCredentials(ctx, match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusSuccess {
		t.Fatalf("handshake failed: %d %s", resp.StatusCode, resp.StatusMessage)
	}

	// the response carries our credentials with a fresh Token C
	creds, ok := resp.Data.(domain.Credentials)
	if !ok {
		t.Fatalf("unexpected response data %T", resp.Data)
	}
	if creds.URL != ownVersionsURL || len(creds.Roles) != 1 {
		t.Fatalf("unexpected own credentials: %+v", creds)
	}
	tokenC := creds.Token
	if tokenC == "" || tokenC == "token-a" {
		t.Fatalf("Token C must be fresh, got %q", tokenC)
	}

	// Token A is dead, Token C authenticates
	if m := reg.TryGetRemoteParties("token-a"); len(m) != 0 {
		t.Fatal("Token A must be invalidated by the handshake")
	}
	rotated := authMatch(t, reg, tokenC)
	if !rotated.AccessInfo.Registered() {
		t.Fatal("Token C must be marked registered")
	}

	// the counterparty's Token B and version choice are stored
	if len(rotated.Party.RemoteAccessInfos) != 1 {
		t.Fatalf("expected one remote access info, got %d", len(rotated.Party.RemoteAccessInfos))
	}
	remote := rotated.Party.RemoteAccessInfos[0]
	if remote.AccessToken != "token-b" || remote.SelectedVersionID != domain.VersionOCPI221 {
		t.Fatalf("unexpected remote access info: %+v", remote)
	}
}

func TestPostCredentialsAlreadyRegistered(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	seedParty(t, reg, "token-c", true)
	match := authMatch(t, reg, "token-c")

	resp := svc.PostCredentials(context.Background(), match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusGenericClientError {
		t.Fatalf("expected rejection, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.StatusMessage, "already registered") {
		t.Fatalf("unexpected message %q", resp.StatusMessage)
	}
}

func TestPutCredentialsNotYetRegistered(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.PutCredentials(context.Background(), match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusGenericClientError {
		t.Fatalf("expected rejection, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.StatusMessage, "not yet registered") {
		t.Fatalf("unexpected message %q", resp.StatusMessage)
	}
}

func TestPutCredentialsRotatesToken(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	ctx := context.Background()
	seedParty(t, reg, "token-c1", true)
	match := authMatch(t, reg, "token-c1")

	resp := svc.PutCredentials(ctx, match, counterpartyBody("token-b2"))
	if resp.StatusCode != ocpi.StatusSuccess {
		t.Fatalf("re-registration failed: %d %s", resp.StatusCode, resp.StatusMessage)
	}
	creds := resp.Data.(domain.Credentials)
	if creds.Token == "token-c1" {
		t.Fatal("PUT must rotate the access token")
	}
	if m := reg.TryGetRemoteParties("token-c1"); len(m) != 0 {
		t.Fatal("old token must be invalidated")
	}
}

func TestPostCredentialsRoleStability(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	body := counterpartyBody("token-b")
	body.Roles = []domain.CredentialsRole{{CountryCode: "NL", PartyID: "MSP", Role: domain.RoleCPO}}
	resp := svc.PostCredentials(context.Background(), match, body)
	if resp.StatusCode != ocpi.StatusGenericClientError {
		t.Fatalf("expected role-change rejection, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.StatusMessage, "updating roles is not allowed") {
		t.Fatalf("unexpected message %q", resp.StatusMessage)
	}
	// the original registration stays intact
	if m := reg.TryGetRemoteParties("token-a"); len(m) != 1 {
		t.Fatal("rejected handshake must not invalidate Token A")
	}
}

func TestPostCredentialsUnreachableCounterparty(t *testing.T) {
	client := happyClient()
	client.GetVersionsFunc = func(context.Context, string, string) ([]domain.VersionInformation, error) {
		return nil, errors.New("connection refused")
	}
	svc, reg := newTestService(t, client)
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.PostCredentials(context.Background(), match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusUnableToUseClientAPI {
		t.Fatalf("expected 3001, got %d", resp.StatusCode)
	}
	if m := reg.TryGetRemoteParties("token-a"); len(m) != 1 {
		t.Fatal("failed handshake must not invalidate Token A")
	}
}

func TestPostCredentialsUnsupportedVersion(t *testing.T) {
	client := happyClient()
	client.GetVersionsFunc = func(_ context.Context, url, _ string) ([]domain.VersionInformation, error) {
		return []domain.VersionInformation{{Version: "2.1.1", URL: url + "/2.1.1"}}, nil
	}
	svc, reg := newTestService(t, client)
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.PostCredentials(context.Background(), match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusUnsupportedVersion {
		t.Fatalf("expected 3002, got %d", resp.StatusCode)
	}
}

func TestPostCredentialsNoEndpoints(t *testing.T) {
	client := happyClient()
	client.GetVersionDetailsFunc = func(context.Context, string, string) (*domain.VersionDetails, error) {
		return &domain.VersionDetails{Version: domain.VersionOCPI221}, nil
	}
	svc, reg := newTestService(t, client)
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.PostCredentials(context.Background(), match, counterpartyBody("token-b"))
	if resp.StatusCode != ocpi.StatusNoMatchingEndpoints {
		t.Fatalf("expected 3003, got %d", resp.StatusCode)
	}
}

func TestDeleteCredentials(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	ctx := context.Background()
	seedParty(t, reg, "token-c", true)
	match := authMatch(t, reg, "token-c")

	resp := svc.DeleteCredentials(ctx, match)
	if resp.StatusCode != ocpi.StatusSuccess {
		t.Fatalf("delete failed: %d %s", resp.StatusCode, resp.StatusMessage)
	}
	if m := reg.TryGetRemoteParties("token-c"); len(m) != 0 {
		t.Fatal("unregistered token must not authenticate")
	}
}

func TestDeleteCredentialsUnregistered(t *testing.T) {
	svc, reg := newTestService(t, happyClient())
	seedParty(t, reg, "token-a", false)
	match := authMatch(t, reg, "token-a")

	resp := svc.DeleteCredentials(context.Background(), match)
	if resp.StatusCode != ocpi.StatusGenericClientError {
		t.Fatalf("expected rejection, got %d", resp.StatusCode)
	}
}

func TestAllowedMethodsByState(t *testing.T) {
	svc, reg := newTestService(t, happyClient())

	if got := svc.AllowedMethods(nil); len(got) != 2 || got[1] != "POST" {
		t.Fatalf("anonymous: %v", got)
	}

	seedParty(t, reg, "token-a", false)
	unregistered := authMatch(t, reg, "token-a")
	if got := svc.AllowedMethods(&unregistered); len(got) != 3 || got[2] != "POST" {
		t.Fatalf("unregistered: %v", got)
	}

	reg2 := registry.NewRegistry(mocks.NewMockCommandLog(), events.NewBus(zap.NewNop()), zap.NewNop())
	svc2 := NewService(reg2, happyClient(), ownVersionsURL, ownRoles, zap.NewNop())
	seedParty(t, reg2, "token-c", true)
	registered := authMatch(t, reg2, "token-c")
	if got := svc2.AllowedMethods(&registered); len(got) != 4 || got[3] != "DELETE" {
		t.Fatalf("registered: %v", got)
	}
}
