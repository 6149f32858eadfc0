package store

import (
	"context"
	"fmt"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

const (
	cmdAddCDR    = "addCDR"
	cmdUpdateCDR = "updateCDR"
	cmdRemoveCDR = "removeCDR"
)

// AddCDR adds a new charge detail record; an existing id is a failure.
func (s *Store) AddCDR(ctx context.Context, cdr *domain.CDR) domain.Result[*domain.CDR] {
	pd, err := s.party(cdr.PartyKey())
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	if !pd.cdrs.SetIfAbsent(cdr.ID, cdr) {
		return domain.Failed[*domain.CDR](domain.AlreadyExistsErrorf("cdr %s already exists", cdr.ID))
	}
	tid := s.appendAsset(ctx, cmdAddCDR, cdr)
	s.publish(ctx, events.TopicCDRAdded, cdr.PartyKey(), string(cdr.ID), tid, cdr)
	return domain.Created(cdr)
}

// AddCDRIfNotExists treats an existing id as a successful no-op.
func (s *Store) AddCDRIfNotExists(ctx context.Context, cdr *domain.CDR) domain.Result[*domain.CDR] {
	pd, err := s.party(cdr.PartyKey())
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	if !pd.cdrs.SetIfAbsent(cdr.ID, cdr) {
		existing, _ := pd.cdrs.Get(cdr.ID)
		return domain.NoOperation(existing, "cdr already exists")
	}
	tid := s.appendAsset(ctx, cmdAddCDR, cdr)
	s.publish(ctx, events.TopicCDRAdded, cdr.PartyKey(), string(cdr.ID), tid, cdr)
	return domain.Created(cdr)
}

// AddOrUpdateCDR upserts with the downgrade check on the update path.
// Credit CDRs and late corrections come in this way; the receiver endpoint
// itself never exposes an update verb.
func (s *Store) AddOrUpdateCDR(ctx context.Context, cdr *domain.CDR, allowDowngrades *bool) domain.Result[*domain.CDR] {
	pd, err := s.party(cdr.PartyKey())
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	existing, ok := pd.cdrs.Get(cdr.ID)
	if !ok {
		if !pd.cdrs.SetIfAbsent(cdr.ID, cdr) {
			return domain.Failed[*domain.CDR](domain.ErrConcurrentModification)
		}
		tid := s.appendAsset(ctx, cmdAddCDR, cdr)
		s.publish(ctx, events.TopicCDRAdded, cdr.PartyKey(), string(cdr.ID), tid, cdr)
		return domain.Created(cdr)
	}
	if err := checkTimestamp(existing.LastUpdated, cdr.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	if !pd.cdrs.CompareAndSwap(cdr.ID, existing, cdr) {
		return domain.Failed[*domain.CDR](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateCDR, cdr)
	s.publish(ctx, events.TopicCDRChanged, cdr.PartyKey(), string(cdr.ID), tid, cdr)
	return domain.Updated(cdr)
}

// UpdateCDR updates an existing record; a missing id is a failure.
func (s *Store) UpdateCDR(ctx context.Context, cdr *domain.CDR, allowDowngrades *bool) domain.Result[*domain.CDR] {
	pd, err := s.party(cdr.PartyKey())
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	existing, ok := pd.cdrs.Get(cdr.ID)
	if !ok {
		return domain.Failed[*domain.CDR](domain.NotFoundErrorf("cdr %s not found", cdr.ID))
	}
	if err := checkTimestamp(existing.LastUpdated, cdr.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	if !pd.cdrs.CompareAndSwap(cdr.ID, existing, cdr) {
		return domain.Failed[*domain.CDR](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateCDR, cdr)
	s.publish(ctx, events.TopicCDRChanged, cdr.PartyKey(), string(cdr.ID), tid, cdr)
	return domain.Updated(cdr)
}

// PatchCDR applies a JSON merge patch, then funnels through the update
// path. Patch failures take precedence.
func (s *Store) PatchCDR(ctx context.Context, key domain.PartyKey, id domain.CDRID, patch []byte, allowDowngrades *bool) domain.Result[*domain.CDR] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	existing, ok := pd.cdrs.Get(id)
	if !ok {
		return domain.Failed[*domain.CDR](domain.NotFoundErrorf("cdr %s not found", id))
	}
	patched, err := mergePatch(existing, patch)
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	patched.CountryCode = existing.CountryCode
	patched.PartyID = existing.PartyID
	patched.ID = existing.ID
	return s.UpdateCDR(ctx, patched, allowDowngrades)
}

// RemoveCDR removes by id.
func (s *Store) RemoveCDR(ctx context.Context, key domain.PartyKey, id domain.CDRID) domain.Result[*domain.CDR] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.CDR](err)
	}
	removed, ok := pd.cdrs.Delete(id)
	if !ok {
		return domain.Failed[*domain.CDR](domain.NotFoundErrorf("cdr %s not found", id))
	}
	tid := s.appendAsset(ctx, cmdRemoveCDR, removed)
	s.publish(ctx, events.TopicCDRRemoved, key, string(id), tid, removed)
	return domain.Removed(removed)
}

// RemoveAllCDRs removes the party's CDRs matching the optional predicate,
// returning the removed set.
func (s *Store) RemoveAllCDRs(ctx context.Context, key domain.PartyKey, match func(*domain.CDR) bool) ([]*domain.CDR, error) {
	pd, err := s.party(key)
	if err != nil {
		return nil, err
	}
	var removed []*domain.CDR
	pd.cdrs.Range(func(id domain.CDRID, cdr *domain.CDR) bool {
		if match != nil && !match(cdr) {
			return true
		}
		if cur, ok := pd.cdrs.Delete(id); ok {
			removed = append(removed, cur)
			tid := s.appendAsset(ctx, cmdRemoveCDR, cur)
			s.publish(ctx, events.TopicCDRRemoved, key, string(id), tid, cur)
		}
		return true
	})
	return removed, nil
}

// CDRExists reports whether the id is present in memory.
func (s *Store) CDRExists(key domain.PartyKey, id domain.CDRID) bool {
	pd, ok := s.parties.Get(key)
	if !ok {
		return false
	}
	_, ok = pd.cdrs.Get(id)
	return ok
}

// GetCDR looks up a CDR, falling back to the injected slow-storage hook on
// a local miss. Fallback results are not cached back.
func (s *Store) GetCDR(ctx context.Context, key domain.PartyKey, id domain.CDRID) (*domain.CDR, bool, error) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, false, nil
	}
	if cdr, ok := pd.cdrs.Get(id); ok {
		return cdr, true, nil
	}
	if s.opts.OnCDRLookup == nil {
		return nil, false, nil
	}
	cdr, err := s.opts.OnCDRLookup(ctx, key, id)
	if err != nil {
		return nil, false, fmt.Errorf("cdr fallback lookup failed: %w", err)
	}
	return cdr, cdr != nil, nil
}

// GetCDRs returns the party's in-memory CDRs matching the optional filter.
func (s *Store) GetCDRs(key domain.PartyKey, filter func(*domain.CDR) bool) []*domain.CDR {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	var out []*domain.CDR
	pd.cdrs.Range(func(_ domain.CDRID, cdr *domain.CDR) bool {
		if filter == nil || filter(cdr) {
			out = append(out, cdr)
		}
		return true
	})
	return out
}
