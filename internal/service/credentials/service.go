// Package credentials implements the OCPI registration handshake: the
// protocol state machine behind GET/POST/PUT/DELETE /credentials.
package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/ports"
	"github.com/emobix/ocpi-node/internal/registry"
)

type Service struct {
	log      *zap.Logger
	registry *registry.Registry
	client   ports.VersionsClient

	versionsURL string
	roles       []domain.CredentialsRole
}

func NewService(reg *registry.Registry, client ports.VersionsClient, versionsURL string, roles []domain.CredentialsRole, log *zap.Logger) *Service {
	return &Service{
		log:         log,
		registry:    reg,
		client:      client,
		versionsURL: versionsURL,
		roles:       roles,
	}
}

// OwnCredentials builds this node's credentials payload carrying the given
// access token.
func (s *Service) OwnCredentials(token string) domain.Credentials {
	return domain.Credentials{
		Token: token,
		URL:   s.versionsURL,
		Roles: s.roles,
	}
}

// GetCredentials serves GET /credentials: the caller must present a known,
// ALLOWED token.
func (s *Service) GetCredentials(match registry.Match) ocpi.Response {
	if match.AccessInfo.Status != domain.AccessStatusAllowed {
		return ocpi.Failure(ocpi.StatusGenericClientError, "access token is not allowed")
	}
	return ocpi.Success(s.OwnCredentials(match.AccessInfo.AccessToken))
}

// PostCredentials serves first-time registration. The presented token must
// be ALLOWED and must not have completed a handshake yet.
func (s *Service) PostCredentials(ctx context.Context, match registry.Match, body domain.Credentials) ocpi.Response {
	if match.AccessInfo.Status != domain.AccessStatusAllowed {
		return s.reject("access token is not allowed")
	}
	if match.AccessInfo.Registered() {
		return s.reject("client is already registered, use PUT to update the registration")
	}
	return s.postOrPutCredentials(ctx, match, body)
}

// PutCredentials serves re-registration and token rotation. The presented
// token must not be BLOCKED and must have completed a handshake before.
func (s *Service) PutCredentials(ctx context.Context, match registry.Match, body domain.Credentials) ocpi.Response {
	if match.AccessInfo.Status == domain.AccessStatusBlocked {
		return s.reject("access token is blocked")
	}
	if !match.AccessInfo.Registered() {
		return s.reject("client is not yet registered, use POST to register")
	}
	return s.postOrPutCredentials(ctx, match, body)
}

// DeleteCredentials unregisters the caller: every local access tied to the
// presented token is removed.
func (s *Service) DeleteCredentials(ctx context.Context, match registry.Match) ocpi.Response {
	if match.AccessInfo.Status != domain.AccessStatusAllowed {
		return ocpi.Failure(ocpi.StatusGenericClientError, "access token is not allowed")
	}
	if !match.AccessInfo.Registered() {
		return ocpi.Failure(ocpi.StatusGenericClientError, "client is not registered")
	}
	if err := s.registry.RemoveAccessToken(ctx, match.AccessInfo.AccessToken); err != nil {
		s.log.Error("Failed to remove access token", zap.Error(err))
		return ocpi.Failure(ocpi.StatusGenericServerError, "failed to unregister client")
	}
	s.log.Info("Client unregistered", zap.String("remote_party", string(match.Party.ID)))
	return ocpi.Success(nil)
}

// postOrPutCredentials is the shared handshake. Token A is the caller's
// presented token, Token B the one the counterparty wants us to use when
// calling back, Token C the fresh one we mint for them.
func (s *Service) postOrPutCredentials(ctx context.Context, match registry.Match, body domain.Credentials) ocpi.Response {
	tokenA := match.AccessInfo.AccessToken
	if tokenA == "" {
		return s.reject("missing access token")
	}
	existing := match.Party
	if existing == nil {
		return s.reject("no remote party registered for the presented access token")
	}
	if body.URL == "" || body.Token == "" || len(body.Roles) == 0 {
		return ocpi.Failure(ocpi.StatusInvalidParameters, "credentials must carry a token, a versions URL and at least one role")
	}

	versions, err := s.client.GetVersions(ctx, body.URL, body.Token)
	if err != nil {
		s.log.Warn("Counterparty versions endpoint failed",
			zap.String("url", body.URL),
			zap.Error(err),
		)
		telemetry.RegistrationsTotal.WithLabelValues("failure").Inc()
		return ocpi.Failure(ocpi.StatusUnableToUseClientAPI,
			fmt.Sprintf("could not fetch versions from %s: %v", body.URL, err))
	}

	var selected *domain.VersionInformation
	versionIDs := make([]domain.VersionID, 0, len(versions))
	for i, v := range versions {
		versionIDs = append(versionIDs, v.Version)
		if v.Version == domain.VersionOCPI221 {
			selected = &versions[i]
		}
	}
	if selected == nil {
		telemetry.RegistrationsTotal.WithLabelValues("failure").Inc()
		return ocpi.Failure(ocpi.StatusUnsupportedVersion,
			fmt.Sprintf("counterparty at %s does not support OCPI %s", body.URL, domain.VersionOCPI221))
	}

	details, err := s.client.GetVersionDetails(ctx, selected.URL, body.Token)
	if err != nil {
		s.log.Warn("Counterparty version details endpoint failed",
			zap.String("url", selected.URL),
			zap.Error(err),
		)
		telemetry.RegistrationsTotal.WithLabelValues("failure").Inc()
		return ocpi.Failure(ocpi.StatusUnableToUseClientAPI,
			fmt.Sprintf("could not fetch version details from %s: %v", selected.URL, err))
	}
	if details == nil || len(details.Endpoints) == 0 {
		telemetry.RegistrationsTotal.WithLabelValues("failure").Inc()
		return ocpi.Failure(ocpi.StatusNoMatchingEndpoints,
			fmt.Sprintf("counterparty at %s advertises no endpoints", selected.URL))
	}

	// Role-stability guard: re-registration must not grow, shrink or
	// substitute roles.
	if err := rolesStable(existing.Roles, body.Roles); err != nil {
		telemetry.RegistrationsTotal.WithLabelValues("failure").Inc()
		return ocpi.Failure(ocpi.StatusGenericClientError, err.Error())
	}

	tokenC := registry.NewAccessToken()
	if err := s.registry.RemoveAccessToken(ctx, tokenA); err != nil {
		s.log.Error("Failed to rotate access token", zap.Error(err))
		return ocpi.Failure(ocpi.StatusGenericServerError, "failed to rotate access token")
	}

	updated := registry.NewRemoteParty(
		existing.ID,
		body.Roles,
		[]domain.LocalAccessInfo{{
			AccessToken: tokenC,
			Status:      domain.AccessStatusAllowed,
			VersionsURL: body.URL,
		}},
		[]domain.RemoteAccessInfo{{
			AccessToken:       body.Token,
			VersionsURL:       body.URL,
			VersionIDs:        versionIDs,
			SelectedVersionID: domain.VersionOCPI221,
			Status:            domain.RemoteStatusOnline,
		}},
		domain.PartyStatusEnabled,
	)
	if _, err := s.registry.AddOrUpdateRemoteParty(ctx, updated); err != nil {
		s.log.Error("Failed to store registration", zap.Error(err))
		return ocpi.Failure(ocpi.StatusGenericServerError, "failed to store registration")
	}

	s.log.Info("Credentials handshake completed",
		zap.String("remote_party", string(updated.ID)),
		zap.String("versions_url", body.URL),
	)
	telemetry.RegistrationsTotal.WithLabelValues("success").Inc()
	return ocpi.Success(s.OwnCredentials(tokenC))
}

func (s *Service) reject(message string) ocpi.Response {
	telemetry.RegistrationsTotal.WithLabelValues("rejected").Inc()
	return ocpi.Failure(ocpi.StatusGenericClientError, message)
}

// rolesStable enforces the anti-hijack invariant: the role count must not
// change and every new role must match an existing one by (party id, role).
func rolesStable(old, new []domain.CredentialsRole) error {
	if len(old) != len(new) {
		return fmt.Errorf("updating roles is not allowed: role count changed from %d to %d", len(old), len(new))
	}
	for _, nr := range new {
		found := false
		for _, or := range old {
			if or.PartyID == nr.PartyID && or.Role == nr.Role {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("updating roles is not allowed: no existing role matches %s/%s", nr.PartyID, nr.Role)
		}
	}
	return nil
}

// AllowedMethods returns the verbs valid for the caller's current
// registration state, for OPTIONS and the CORS headers.
func (s *Service) AllowedMethods(match *registry.Match) []string {
	if match == nil {
		return []string{"OPTIONS", "POST"}
	}
	if match.AccessInfo.Registered() {
		return []string{"OPTIONS", "GET", "PUT", "DELETE"}
	}
	return []string{"OPTIONS", "GET", "POST"}
}
