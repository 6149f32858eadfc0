// Package registry holds the registered counterparties and answers access
// token authentication. All mutating operations append to the remote-parties
// command log so the registry survives restarts.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/cmap"
	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/ports"
)

const (
	cmdAddRemoteParty         = "addRemoteParty"
	cmdUpdateRemoteParty      = "updateRemoteParty"
	cmdRemoveRemoteParty      = "removeRemoteParty"
	cmdRemoveAllRemoteParties = "removeAllRemoteParties"
)

type removalPayload struct {
	ID domain.RemotePartyID `json:"id"`
}

type Registry struct {
	log     *zap.Logger
	clog    ports.CommandLog
	bus     *events.Bus
	parties *cmap.Map[domain.RemotePartyID, *domain.RemoteParty]
}

func NewRegistry(clog ports.CommandLog, bus *events.Bus, log *zap.Logger) *Registry {
	return &Registry{
		log:     log,
		clog:    clog,
		bus:     bus,
		parties: cmap.New[domain.RemotePartyID, *domain.RemoteParty](),
	}
}

// Restore replays the remote-parties command log into memory. Must be
// called before the registry serves requests.
func (r *Registry) Restore() error {
	entries, err := r.clog.Load(ports.LogRemoteParties)
	if err != nil {
		return fmt.Errorf("failed to load remote parties log: %w", err)
	}
	for _, e := range entries {
		switch e.Command {
		case cmdAddRemoteParty, cmdUpdateRemoteParty:
			var party domain.RemoteParty
			if err := json.Unmarshal(e.Payload, &party); err != nil {
				r.log.Warn("Skipping unreadable remote party entry", zap.Error(err))
				continue
			}
			r.parties.Upsert(party.ID, &party)
		case cmdRemoveRemoteParty:
			var p removalPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				r.log.Warn("Skipping unreadable removal entry", zap.Error(err))
				continue
			}
			r.parties.Delete(p.ID)
		case cmdRemoveAllRemoteParties:
			r.parties.Clear()
		default:
			r.log.Warn("Unknown remote parties command", zap.String("cmd", e.Command))
		}
	}
	telemetry.RegisteredRemoteParties.Set(float64(r.parties.Len()))
	r.log.Info("Remote party registry restored",
		zap.Int("entries", len(entries)),
		zap.Int("parties", r.parties.Len()),
	)
	return nil
}

// NewRemoteParty builds the canonical RemoteParty all Add overloads
// normalize to.
func NewRemoteParty(
	id domain.RemotePartyID,
	roles []domain.CredentialsRole,
	localAccessInfos []domain.LocalAccessInfo,
	remoteAccessInfos []domain.RemoteAccessInfo,
	status domain.PartyStatus,
) *domain.RemoteParty {
	return &domain.RemoteParty{
		ID:                id,
		Roles:             append([]domain.CredentialsRole(nil), roles...),
		LocalAccessInfos:  append([]domain.LocalAccessInfo(nil), localAccessInfos...),
		RemoteAccessInfos: append([]domain.RemoteAccessInfo(nil), remoteAccessInfos...),
		Status:            status,
		LastUpdated:       time.Now().UTC(),
	}
}

// AddRemoteParty adds a new counterparty; false when the id is taken.
func (r *Registry) AddRemoteParty(ctx context.Context, party *domain.RemoteParty) (bool, error) {
	if !r.parties.SetIfAbsent(party.ID, party) {
		return false, nil
	}
	tid, err := r.append(ctx, cmdAddRemoteParty, party)
	if err != nil {
		r.parties.Delete(party.ID)
		return false, err
	}
	r.publish(ctx, events.TopicPartyRegistered, party, tid)
	return true, nil
}

// AddRemotePartyIfNotExists is the idempotent variant: an occupied id is a
// successful no-op.
func (r *Registry) AddRemotePartyIfNotExists(ctx context.Context, party *domain.RemoteParty) (bool, error) {
	if _, ok := r.parties.Get(party.ID); ok {
		return true, nil
	}
	return r.AddRemoteParty(ctx, party)
}

// AddOrUpdateRemoteParty upserts; the returned bool reports whether the id
// was newly created.
func (r *Registry) AddOrUpdateRemoteParty(ctx context.Context, party *domain.RemoteParty) (bool, error) {
	created := r.parties.Upsert(party.ID, party)
	cmd := cmdUpdateRemoteParty
	if created {
		cmd = cmdAddRemoteParty
	}
	tid, err := r.append(ctx, cmd, party)
	if err != nil {
		return created, err
	}
	r.publish(ctx, events.TopicPartyRegistered, party, tid)
	return created, nil
}

// UpdateRemoteParty replaces existing with updated, compare-and-swap style:
// it fails when the stored instance is no longer the caller's snapshot.
func (r *Registry) UpdateRemoteParty(ctx context.Context, existing, updated *domain.RemoteParty) (bool, error) {
	if existing.ID != updated.ID {
		return false, fmt.Errorf("remote party id mismatch: %s vs %s", existing.ID, updated.ID)
	}
	if !r.parties.CompareAndSwap(existing.ID, existing, updated) {
		return false, nil
	}
	if _, err := r.append(ctx, cmdUpdateRemoteParty, updated); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveRemoteParty removes by id; true even when nothing matched.
func (r *Registry) RemoveRemoteParty(ctx context.Context, id domain.RemotePartyID) (bool, error) {
	removed, ok := r.parties.Delete(id)
	if !ok {
		return true, nil
	}
	tid, err := r.append(ctx, cmdRemoveRemoteParty, removalPayload{ID: id})
	if err != nil {
		return false, err
	}
	r.publish(ctx, events.TopicPartyUnregistered, removed, tid)
	return true, nil
}

// RemoveRemoteParties removes every party matching key and role.
func (r *Registry) RemoveRemoteParties(ctx context.Context, key domain.PartyKey, role domain.Role) (bool, error) {
	for _, p := range r.GetRemotePartiesByKeyAndRole(key, role) {
		if _, err := r.RemoveRemoteParty(ctx, p.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RemoveRemotePartiesByToken removes parties matching key, role and local
// access token.
func (r *Registry) RemoveRemotePartiesByToken(ctx context.Context, key domain.PartyKey, role domain.Role, accessToken string) (bool, error) {
	for _, p := range r.GetRemotePartiesByKeyAndRole(key, role) {
		if _, ok := p.LocalToken(accessToken); !ok {
			continue
		}
		if _, err := r.RemoveRemoteParty(ctx, p.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RemoveAllRemoteParties clears the registry.
func (r *Registry) RemoveAllRemoteParties(ctx context.Context) error {
	removed := r.parties.Values()
	n := r.parties.Clear()
	tid, err := r.append(ctx, cmdRemoveAllRemoteParties, nil)
	if err != nil {
		return err
	}
	for _, p := range removed {
		r.publish(ctx, events.TopicPartyUnregistered, p, tid)
	}
	r.log.Info("Removed all remote parties", zap.Int("count", n))
	return nil
}

// GetRemoteParty looks up one party by id.
func (r *Registry) GetRemoteParty(id domain.RemotePartyID) (*domain.RemoteParty, bool) {
	return r.parties.Get(id)
}

// GetRemoteParties returns all parties matching the optional filter.
func (r *Registry) GetRemoteParties(filter func(*domain.RemoteParty) bool) []*domain.RemoteParty {
	var out []*domain.RemoteParty
	r.parties.Range(func(_ domain.RemotePartyID, p *domain.RemoteParty) bool {
		if filter == nil || filter(p) {
			out = append(out, p)
		}
		return true
	})
	return out
}

func (r *Registry) GetRemotePartiesByKey(key domain.PartyKey) []*domain.RemoteParty {
	return r.GetRemoteParties(func(p *domain.RemoteParty) bool { return p.HasKey(key) })
}

func (r *Registry) GetRemotePartiesByRole(role domain.Role) []*domain.RemoteParty {
	return r.GetRemoteParties(func(p *domain.RemoteParty) bool { return p.HasRole(role) })
}

func (r *Registry) GetRemotePartiesByKeyAndRole(key domain.PartyKey, role domain.Role) []*domain.RemoteParty {
	return r.GetRemoteParties(func(p *domain.RemoteParty) bool {
		for _, cr := range p.Roles {
			if cr.Key() == key && cr.Role == role {
				return true
			}
		}
		return false
	})
}

// GetRemotePartiesByToken returns parties holding the given local access
// token, optionally restricted to a token status.
func (r *Registry) GetRemotePartiesByToken(accessToken string, status ...domain.AccessStatus) []*domain.RemoteParty {
	return r.GetRemoteParties(func(p *domain.RemoteParty) bool {
		ai, ok := p.LocalToken(accessToken)
		if !ok {
			return false
		}
		if len(status) > 0 && ai.Status != status[0] {
			return false
		}
		return true
	})
}

// Match is one successful authentication: the party and the local access
// info the presented credentials matched.
type Match struct {
	Party      *domain.RemoteParty
	AccessInfo domain.LocalAccessInfo
}

// TryGetRemoteParties authenticates a presented access token. For token
// entries carrying a TOTP config the presented value is checked against the
// one-time codes of the previous, current and next window (clock-skew
// tolerance); plain entries compare the static token. An empty result means
// authentication failure; normally exactly one party matches.
func (r *Registry) TryGetRemoteParties(accessToken string) []Match {
	now := time.Now().UTC()
	var matches []Match
	r.parties.Range(func(_ domain.RemotePartyID, p *domain.RemoteParty) bool {
		if p.Status != domain.PartyStatusEnabled {
			return true
		}
		for _, ai := range p.LocalAccessInfos {
			if !ai.ValidAt(now) {
				continue
			}
			if ai.TOTP != nil {
				if r.totpMatches(*ai.TOTP, accessToken, now) {
					matches = append(matches, Match{Party: p, AccessInfo: ai})
				}
				continue
			}
			if ai.AccessToken == accessToken {
				matches = append(matches, Match{Party: p, AccessInfo: ai})
			}
		}
		return true
	})
	return matches
}

func (r *Registry) totpMatches(cfg domain.TOTPConfig, presented string, now time.Time) bool {
	period := uint(cfg.ValidityTime / time.Second)
	if period == 0 {
		period = 30
	}
	digits := otp.Digits(cfg.Length)
	if cfg.Length == 0 {
		digits = otp.DigitsSix
	}
	opts := totp.ValidateOpts{
		Period:    period,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	}
	for _, t := range []time.Time{
		now.Add(-time.Duration(period) * time.Second),
		now,
		now.Add(time.Duration(period) * time.Second),
	} {
		code, err := totp.GenerateCodeCustom(cfg.SharedSecret, t, opts)
		if err != nil {
			r.log.Warn("TOTP generation failed", zap.Error(err))
			return false
		}
		if code == presented {
			return true
		}
	}
	return false
}

// RemoveAccessToken removes one local access token wherever it is held.
// A party holding only this token is removed entirely; a party holding more
// is replaced by a copy lacking the token. Used for unregistration and for
// token rotation during re-registration.
func (r *Registry) RemoveAccessToken(ctx context.Context, accessToken string) error {
	for _, p := range r.GetRemotePartiesByToken(accessToken) {
		if len(p.LocalAccessInfos) == 1 {
			if _, err := r.RemoveRemoteParty(ctx, p.ID); err != nil {
				return err
			}
			continue
		}
		replacement := p.WithoutLocalToken(accessToken)
		ok, err := r.UpdateRemoteParty(ctx, p, replacement)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("remote party %s changed while removing access token", p.ID)
		}
	}
	return nil
}

// append writes one registry mutation to its command log. The returned
// tracking id ties the log entry to its notification.
func (r *Registry) append(ctx context.Context, command string, payload any) (string, error) {
	telemetry.RegisteredRemoteParties.Set(float64(r.parties.Len()))
	trackingID := uuid.NewString()
	return trackingID, r.clog.Append(ctx, ports.LogRemoteParties, command, payload, trackingID, "registry")
}

func (r *Registry) publish(ctx context.Context, topic string, party *domain.RemoteParty, trackingID string) {
	r.bus.Publish(ctx, events.Event{
		Topic:      topic,
		Party:      party.Key(),
		EntityID:   string(party.ID),
		TrackingID: trackingID,
		Payload:    party,
	})
}

// NewAccessToken mints a fresh, unpredictable access token (CREDENTIALS_
// TOKEN_C during the handshake).
func NewAccessToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back anyway.
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
