package store

import (
	"context"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

const (
	cmdAddLocation        = "addLocation"
	cmdUpdateLocation     = "updateLocation"
	cmdRemoveLocation     = "removeLocation"
	cmdRemoveAllLocations = "removeAllLocations"
)

// AddLocation adds a new location; an existing id is a failure.
func (s *Store) AddLocation(ctx context.Context, loc *domain.Location) domain.Result[*domain.Location] {
	pd, err := s.party(loc.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	if !pd.locations.SetIfAbsent(loc.ID, loc) {
		return domain.Failed[*domain.Location](domain.AlreadyExistsErrorf("location %s already exists", loc.ID))
	}
	tid := s.appendAsset(ctx, cmdAddLocation, loc)
	s.publish(ctx, events.TopicLocationAdded, loc.PartyKey(), string(loc.ID), tid, loc)
	return domain.Created(loc)
}

// AddLocationIfNotExists treats an existing id as a successful no-op.
func (s *Store) AddLocationIfNotExists(ctx context.Context, loc *domain.Location) domain.Result[*domain.Location] {
	pd, err := s.party(loc.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	if !pd.locations.SetIfAbsent(loc.ID, loc) {
		existing, _ := pd.locations.Get(loc.ID)
		return domain.NoOperation(existing, "location already exists")
	}
	tid := s.appendAsset(ctx, cmdAddLocation, loc)
	s.publish(ctx, events.TopicLocationAdded, loc.PartyKey(), string(loc.ID), tid, loc)
	return domain.Created(loc)
}

// AddOrUpdateLocation upserts, applying the downgrade check on the update
// path. A compare-and-swap race is a failure, not a retry.
func (s *Store) AddOrUpdateLocation(ctx context.Context, loc *domain.Location, allowDowngrades *bool) domain.Result[*domain.Location] {
	pd, err := s.party(loc.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}

	existing, ok := pd.locations.Get(loc.ID)
	if !ok {
		if !pd.locations.SetIfAbsent(loc.ID, loc) {
			return domain.Failed[*domain.Location](domain.ErrConcurrentModification)
		}
		tid := s.appendAsset(ctx, cmdAddLocation, loc)
		s.publish(ctx, events.TopicLocationAdded, loc.PartyKey(), string(loc.ID), tid, loc)
		return domain.Created(loc)
	}

	if err := checkTimestamp(existing.LastUpdated, loc.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.Location](err)
	}
	if !pd.locations.CompareAndSwap(loc.ID, existing, loc) {
		return domain.Failed[*domain.Location](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, loc)
	s.publish(ctx, events.TopicLocationChanged, loc.PartyKey(), string(loc.ID), tid, loc)
	return domain.Updated(loc)
}

// UpdateLocation updates an existing location; a missing id is a failure.
func (s *Store) UpdateLocation(ctx context.Context, loc *domain.Location, allowDowngrades *bool) domain.Result[*domain.Location] {
	pd, err := s.party(loc.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	existing, ok := pd.locations.Get(loc.ID)
	if !ok {
		return domain.Failed[*domain.Location](domain.NotFoundErrorf("location %s not found", loc.ID))
	}
	if err := checkTimestamp(existing.LastUpdated, loc.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.Location](err)
	}
	if !pd.locations.CompareAndSwap(loc.ID, existing, loc) {
		return domain.Failed[*domain.Location](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, loc)
	s.publish(ctx, events.TopicLocationChanged, loc.PartyKey(), string(loc.ID), tid, loc)
	return domain.Updated(loc)
}

// PatchLocation applies a JSON merge patch to the stored location and
// funnels the result through the update path. Patch failures take
// precedence over update failures.
func (s *Store) PatchLocation(ctx context.Context, key domain.PartyKey, id domain.LocationID, patch []byte, allowDowngrades *bool) domain.Result[*domain.Location] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	existing, ok := pd.locations.Get(id)
	if !ok {
		return domain.Failed[*domain.Location](domain.NotFoundErrorf("location %s not found", id))
	}
	patched, err := mergePatch(existing, patch)
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	// Identity fields are not patchable.
	patched.CountryCode = existing.CountryCode
	patched.PartyID = existing.PartyID
	patched.ID = existing.ID
	return s.UpdateLocation(ctx, patched, allowDowngrades)
}

// RemoveLocation removes by id.
func (s *Store) RemoveLocation(ctx context.Context, key domain.PartyKey, id domain.LocationID) domain.Result[*domain.Location] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.Location](err)
	}
	removed, ok := pd.locations.Delete(id)
	if !ok {
		return domain.Failed[*domain.Location](domain.NotFoundErrorf("location %s not found", id))
	}
	tid := s.appendAsset(ctx, cmdRemoveLocation, removed)
	s.publish(ctx, events.TopicLocationRemoved, key, string(id), tid, removed)
	return domain.Removed(removed)
}

// RemoveAllLocations removes every location of the party matching the
// optional predicate and returns the removed set.
func (s *Store) RemoveAllLocations(ctx context.Context, key domain.PartyKey, match func(*domain.Location) bool) ([]*domain.Location, error) {
	pd, err := s.party(key)
	if err != nil {
		return nil, err
	}
	var removed []*domain.Location
	pd.locations.Range(func(id domain.LocationID, loc *domain.Location) bool {
		if match != nil && !match(loc) {
			return true
		}
		if cur, ok := pd.locations.Delete(id); ok {
			removed = append(removed, cur)
			tid := s.appendAsset(ctx, cmdRemoveLocation, cur)
			s.publish(ctx, events.TopicLocationRemoved, key, string(id), tid, cur)
		}
		return true
	})
	return removed, nil
}

// LocationExists reports whether the id is present.
func (s *Store) LocationExists(key domain.PartyKey, id domain.LocationID) bool {
	pd, ok := s.parties.Get(key)
	if !ok {
		return false
	}
	_, ok = pd.locations.Get(id)
	return ok
}

// GetLocation looks up a location by id.
func (s *Store) GetLocation(key domain.PartyKey, id domain.LocationID) (*domain.Location, bool) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, false
	}
	return pd.locations.Get(id)
}

// GetLocations returns the party's locations matching the optional filter.
func (s *Store) GetLocations(key domain.PartyKey, filter func(*domain.Location) bool) []*domain.Location {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	var out []*domain.Location
	pd.locations.Range(func(_ domain.LocationID, loc *domain.Location) bool {
		if filter == nil || filter(loc) {
			out = append(out, loc)
		}
		return true
	})
	return out
}

// GetEVSE looks up an EVSE within a location.
func (s *Store) GetEVSE(key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID) (*domain.EVSE, bool) {
	loc, ok := s.GetLocation(key, locationID)
	if !ok {
		return nil, false
	}
	return loc.GetEVSE(uid)
}

// GetConnector looks up a connector within an EVSE.
func (s *Store) GetConnector(key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID, connectorID domain.ConnectorID) (domain.Connector, bool) {
	evse, ok := s.GetEVSE(key, locationID, uid)
	if !ok {
		return domain.Connector{}, false
	}
	conn, ok := evse.Connectors[connectorID]
	return conn, ok
}

// AddOrUpdateEVSE mutates an EVSE as "update the child, then re-save the
// parent with its LastUpdated advanced to the child's timestamp". The
// location always observes a monotonically non-decreasing timestamp. A
// REMOVED EVSE is kept or excised per the retention policy. Fires the
// EVSE-level notification matching the status transition plus exactly one
// location-changed notification.
func (s *Store) AddOrUpdateEVSE(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, evse *domain.EVSE, allowDowngrades *bool) domain.Result[*domain.EVSE] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.EVSE](err)
	}
	loc, ok := pd.locations.Get(locationID)
	if !ok {
		return domain.Failed[*domain.EVSE](domain.NotFoundErrorf("location %s not found", locationID))
	}

	old, hadOld := loc.GetEVSE(evse.UID)
	if hadOld {
		if err := checkTimestamp(old.LastUpdated, evse.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
			return domain.Failed[*domain.EVSE](err)
		}
	}

	updated := loc.Clone()
	excised := false
	if evse.Status == domain.EVSEStatusRemoved && !s.opts.KeepRemovedEVSEs(evse) {
		delete(updated.EVSEs, evse.UID)
		excised = true
	} else {
		updated.EVSEs[evse.UID] = evse.Clone()
	}
	if evse.LastUpdated.After(updated.LastUpdated) {
		updated.LastUpdated = evse.LastUpdated
	}

	if !pd.locations.CompareAndSwap(locationID, loc, updated) {
		return domain.Failed[*domain.EVSE](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, updated)

	topic := events.TopicEVSEChanged
	switch {
	case evse.Status == domain.EVSEStatusRemoved:
		topic = events.TopicEVSERemoved
	case !hadOld:
		topic = events.TopicEVSEAdded
	case old.Status != evse.Status:
		topic = events.TopicEVSEStatusChanged
	}
	s.publish(ctx, topic, key, string(evse.UID), tid, evse)
	s.publish(ctx, events.TopicLocationChanged, key, string(locationID), tid, updated)

	if excised {
		return domain.Removed(evse)
	}
	if !hadOld {
		return domain.Created(evse)
	}
	return domain.Updated(evse)
}

// PatchEVSE applies a JSON merge patch to an EVSE, then funnels through
// AddOrUpdateEVSE.
func (s *Store) PatchEVSE(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID, patch []byte, allowDowngrades *bool) domain.Result[*domain.EVSE] {
	existing, ok := s.GetEVSE(key, locationID, uid)
	if !ok {
		return domain.Failed[*domain.EVSE](domain.NotFoundErrorf("evse %s not found in location %s", uid, locationID))
	}
	patched, err := mergePatch(existing, patch)
	if err != nil {
		return domain.Failed[*domain.EVSE](err)
	}
	patched.UID = existing.UID
	return s.AddOrUpdateEVSE(ctx, key, locationID, patched, allowDowngrades)
}

// RemoveEVSE excises an EVSE from its location regardless of the retention
// policy.
func (s *Store) RemoveEVSE(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID) domain.Result[*domain.EVSE] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.EVSE](err)
	}
	loc, ok := pd.locations.Get(locationID)
	if !ok {
		return domain.Failed[*domain.EVSE](domain.NotFoundErrorf("location %s not found", locationID))
	}
	removed, ok := loc.GetEVSE(uid)
	if !ok {
		return domain.Failed[*domain.EVSE](domain.NotFoundErrorf("evse %s not found in location %s", uid, locationID))
	}

	updated := loc.Clone()
	delete(updated.EVSEs, uid)
	now := time.Now().UTC()
	if now.After(updated.LastUpdated) {
		updated.LastUpdated = now
	}
	if !pd.locations.CompareAndSwap(locationID, loc, updated) {
		return domain.Failed[*domain.EVSE](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, updated)
	s.publish(ctx, events.TopicEVSERemoved, key, string(uid), tid, removed)
	s.publish(ctx, events.TopicLocationChanged, key, string(locationID), tid, updated)
	return domain.Removed(removed)
}

// AddOrUpdateConnector mutates a connector; the owning EVSE and location
// both advance their LastUpdated to the connector's timestamp.
func (s *Store) AddOrUpdateConnector(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID, conn domain.Connector, allowDowngrades *bool) domain.Result[domain.Connector] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[domain.Connector](err)
	}
	loc, ok := pd.locations.Get(locationID)
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("location %s not found", locationID))
	}
	evse, ok := loc.GetEVSE(uid)
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("evse %s not found in location %s", uid, locationID))
	}

	old, hadOld := evse.Connectors[conn.ID]
	if hadOld {
		if err := checkTimestamp(old.LastUpdated, conn.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
			return domain.Failed[domain.Connector](err)
		}
	}

	updated := loc.Clone()
	child := updated.EVSEs[uid]
	child.Connectors[conn.ID] = conn
	if conn.LastUpdated.After(child.LastUpdated) {
		child.LastUpdated = conn.LastUpdated
	}
	if conn.LastUpdated.After(updated.LastUpdated) {
		updated.LastUpdated = conn.LastUpdated
	}

	if !pd.locations.CompareAndSwap(locationID, loc, updated) {
		return domain.Failed[domain.Connector](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, updated)

	topic := events.TopicConnectorChanged
	if !hadOld {
		topic = events.TopicConnectorAdded
	}
	s.publish(ctx, topic, key, string(conn.ID), tid, conn)
	s.publish(ctx, events.TopicLocationChanged, key, string(locationID), tid, updated)

	if !hadOld {
		return domain.Created(conn)
	}
	return domain.Updated(conn)
}

// PatchConnector applies a JSON merge patch to a connector.
func (s *Store) PatchConnector(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID, connectorID domain.ConnectorID, patch []byte, allowDowngrades *bool) domain.Result[domain.Connector] {
	existing, ok := s.GetConnector(key, locationID, uid, connectorID)
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("connector %s not found", connectorID))
	}
	patched, err := mergePatch(&existing, patch)
	if err != nil {
		return domain.Failed[domain.Connector](err)
	}
	patched.ID = existing.ID
	return s.AddOrUpdateConnector(ctx, key, locationID, uid, *patched, allowDowngrades)
}

// RemoveConnector excises a connector from its EVSE.
func (s *Store) RemoveConnector(ctx context.Context, key domain.PartyKey, locationID domain.LocationID, uid domain.EVSEUID, connectorID domain.ConnectorID) domain.Result[domain.Connector] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[domain.Connector](err)
	}
	loc, ok := pd.locations.Get(locationID)
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("location %s not found", locationID))
	}
	evse, ok := loc.GetEVSE(uid)
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("evse %s not found in location %s", uid, locationID))
	}
	removed, ok := evse.Connectors[connectorID]
	if !ok {
		return domain.Failed[domain.Connector](domain.NotFoundErrorf("connector %s not found", connectorID))
	}

	updated := loc.Clone()
	delete(updated.EVSEs[uid].Connectors, connectorID)
	now := time.Now().UTC()
	if now.After(updated.LastUpdated) {
		updated.LastUpdated = now
	}
	if !pd.locations.CompareAndSwap(locationID, loc, updated) {
		return domain.Failed[domain.Connector](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateLocation, updated)
	s.publish(ctx, events.TopicConnectorRemoved, key, string(connectorID), tid, removed)
	s.publish(ctx, events.TopicLocationChanged, key, string(locationID), tid, updated)
	return domain.Removed(removed)
}
