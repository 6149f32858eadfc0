// Package store keeps the per-party entity collections: locations, tariffs,
// sessions, tokens and CDRs, sharded by party key. Mutations are optimistic:
// business checks (existence, downgrade protection) run over a snapshot and
// commit through compare-and-swap; a losing writer gets a Failed result and
// is never retried internally. Every committed mutation is appended to the
// assets command log and fired as a notification.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/cmap"
	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
	"github.com/emobix/ocpi-node/internal/ports"
)

// PartyData is the entity state of one local operating party. Created at
// startup from configuration, never destroyed at runtime.
type PartyData struct {
	ID              domain.PartyKey
	Role            domain.Role
	BusinessDetails domain.BusinessDetails
	AllowDowngrades bool

	locations *cmap.Map[domain.LocationID, *domain.Location]
	tariffs   *cmap.Map[domain.TariffID, *tariffSeries]
	sessions  *cmap.Map[domain.SessionID, *domain.Session]
	tokens    *cmap.Map[domain.TokenID, *domain.TokenStatus]
	cdrs      *cmap.Map[domain.CDRID, *domain.CDR]
}

func newPartyData(key domain.PartyKey, role domain.Role, details domain.BusinessDetails, allowDowngrades bool) *PartyData {
	return &PartyData{
		ID:              key,
		Role:            role,
		BusinessDetails: details,
		AllowDowngrades: allowDowngrades,
		locations:       cmap.New[domain.LocationID, *domain.Location](),
		tariffs:         cmap.New[domain.TariffID, *tariffSeries](),
		sessions:        cmap.New[domain.SessionID, *domain.Session](),
		tokens:          cmap.New[domain.TokenID, *domain.TokenStatus](),
		cdrs:            cmap.New[domain.CDRID, *domain.CDR](),
	}
}

// Options configures the pluggable parts of the store.
type Options struct {
	// KeepRemovedEVSEs decides whether an EVSE that transitioned to
	// REMOVED stays in its location or is excised. Nil keeps everything.
	KeepRemovedEVSEs func(*domain.EVSE) bool

	// OnVerifyToken, OnSessionLookup and OnCDRLookup are the slow-storage
	// fallbacks consulted on a local map miss. Their results are not
	// cached back into the map.
	OnVerifyToken   ports.TokenLookup
	OnSessionLookup ports.SessionLookup
	OnCDRLookup     ports.CDRLookup
}

type Store struct {
	log  *zap.Logger
	clog ports.CommandLog
	bus  *events.Bus
	opts Options

	parties *cmap.Map[domain.PartyKey, *PartyData]
}

func NewStore(clog ports.CommandLog, bus *events.Bus, opts Options, log *zap.Logger) *Store {
	if opts.KeepRemovedEVSEs == nil {
		opts.KeepRemovedEVSEs = func(*domain.EVSE) bool { return true }
	}
	return &Store{
		log:     log,
		clog:    clog,
		bus:     bus,
		opts:    opts,
		parties: cmap.New[domain.PartyKey, *PartyData](),
	}
}

// AddParty registers a local operating party. False when the key is taken.
func (s *Store) AddParty(key domain.PartyKey, role domain.Role, details domain.BusinessDetails, allowDowngrades bool) (*PartyData, bool) {
	pd := newPartyData(key, role, details, allowDowngrades)
	if !s.parties.SetIfAbsent(key, pd) {
		existing, _ := s.parties.Get(key)
		return existing, false
	}
	return pd, true
}

// Party resolves the PartyData owning the given key.
func (s *Store) Party(key domain.PartyKey) (*PartyData, bool) {
	return s.parties.Get(key)
}

// Parties returns all registered local parties.
func (s *Store) Parties() []*PartyData {
	return s.parties.Values()
}

// party resolves the owner or fails with the unknown-party error.
func (s *Store) party(key domain.PartyKey) (*PartyData, error) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, domain.UnknownPartyError(key)
	}
	return pd, nil
}

// downgradesAllowed resolves the effective downgrade policy: the per-call
// override wins, else the owning party's flag.
func downgradesAllowed(pd *PartyData, override *bool) bool {
	if override != nil {
		return *override
	}
	return pd.AllowDowngrades
}

// checkTimestamp enforces the shared downgrade invariant: unless downgrades
// are allowed, a write must carry a LastUpdated strictly newer than the
// stored entity's.
func checkTimestamp(existing, updated time.Time, allow bool) error {
	if allow || updated.After(existing) {
		return nil
	}
	return fmt.Errorf("%w: %s <= %s",
		domain.ErrDowngrade,
		updated.Format(time.RFC3339Nano),
		existing.Format(time.RFC3339Nano),
	)
}

// appendAsset writes one mutation to the assets log. Called after the
// in-memory commit; a late cancellation no longer rolls the mutation back.
// The returned tracking id ties the log entry to its notification.
func (s *Store) appendAsset(ctx context.Context, command string, payload any) string {
	trackingID := uuid.NewString()
	if err := s.clog.Append(ctx, ports.LogAssets, command, payload, trackingID, "store"); err != nil {
		s.log.Error("Failed to append to assets log",
			zap.String("cmd", command),
			zap.Error(err),
		)
	}
	return trackingID
}

func (s *Store) publish(ctx context.Context, topic string, key domain.PartyKey, entityID, trackingID string, payload any) {
	s.bus.Publish(ctx, events.Event{
		Topic:      topic,
		Party:      key,
		EntityID:   entityID,
		TrackingID: trackingID,
		Payload:    payload,
	})
}

// mergePatch applies a JSON merge patch to an entity copy.
func mergePatch[T any](existing *T, patch []byte) (*T, error) {
	orig, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entity for patching: %w", err)
	}
	merged, err := jsonpatch.MergePatch(orig, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to apply merge patch: %w", err)
	}
	out := new(T)
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("failed to deserialize patched entity: %w", err)
	}
	return out, nil
}
