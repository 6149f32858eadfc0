package store

import (
	"context"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

const (
	cmdAddTariff    = "addTariff"
	cmdUpdateTariff = "updateTariff"
	cmdRemoveTariff = "removeTariff"
)

// tariffSeries is the immutable, time-ranged version set of one tariff id,
// sorted ascending by effective date. Mutations build a new series so the
// containing map can compare-and-swap the pointer.
type tariffSeries struct {
	versions []*domain.Tariff
}

// effectiveAt returns the latest version whose NotBefore <= at. With equal
// effective dates the later insertion won (it replaced the earlier one).
func (ts *tariffSeries) effectiveAt(at time.Time) (*domain.Tariff, bool) {
	var best *domain.Tariff
	for _, v := range ts.versions {
		if !v.EffectiveFrom().After(at) {
			best = v
		}
	}
	return best, best != nil
}

func (ts *tariffSeries) version(from time.Time) (*domain.Tariff, int) {
	for i, v := range ts.versions {
		if v.EffectiveFrom().Equal(from) {
			return v, i
		}
	}
	return nil, -1
}

// withVersion returns a new series with the version inserted in order, or
// replaced in place when a version with the same effective date exists
// (last write wins).
func (ts *tariffSeries) withVersion(t *domain.Tariff) *tariffSeries {
	out := &tariffSeries{versions: append([]*domain.Tariff(nil), ts.versions...)}
	if _, i := ts.version(t.EffectiveFrom()); i >= 0 {
		out.versions[i] = t
		return out
	}
	pos := len(out.versions)
	for i, v := range out.versions {
		if v.EffectiveFrom().After(t.EffectiveFrom()) {
			pos = i
			break
		}
	}
	out.versions = append(out.versions[:pos], append([]*domain.Tariff{t}, out.versions[pos:]...)...)
	return out
}

// AddTariff adds a tariff version; an existing version with the same
// effective date is a failure.
func (s *Store) AddTariff(ctx context.Context, t *domain.Tariff) domain.Result[*domain.Tariff] {
	pd, err := s.party(t.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Tariff](err)
	}
	for {
		series, ok := pd.tariffs.Get(t.ID)
		if !ok {
			if !pd.tariffs.SetIfAbsent(t.ID, (&tariffSeries{}).withVersion(t)) {
				continue
			}
		} else {
			if existing, _ := series.version(t.EffectiveFrom()); existing != nil {
				return domain.Failed[*domain.Tariff](domain.AlreadyExistsErrorf("tariff %s already exists", t.ID))
			}
			if !pd.tariffs.CompareAndSwap(t.ID, series, series.withVersion(t)) {
				return domain.Failed[*domain.Tariff](domain.ErrConcurrentModification)
			}
		}
		tid := s.appendAsset(ctx, cmdAddTariff, t)
		s.publish(ctx, events.TopicTariffAdded, t.PartyKey(), string(t.ID), tid, t)
		return domain.Created(t)
	}
}

// AddTariffIfNotExists treats an existing version as a successful no-op.
func (s *Store) AddTariffIfNotExists(ctx context.Context, t *domain.Tariff) domain.Result[*domain.Tariff] {
	pd, err := s.party(t.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Tariff](err)
	}
	if series, ok := pd.tariffs.Get(t.ID); ok {
		if existing, _ := series.version(t.EffectiveFrom()); existing != nil {
			return domain.NoOperation(existing, "tariff already exists")
		}
	}
	return s.AddTariff(ctx, t)
}

// AddOrUpdateTariff upserts a tariff version, applying the downgrade check
// against the version sharing the effective date.
func (s *Store) AddOrUpdateTariff(ctx context.Context, t *domain.Tariff, allowDowngrades *bool) domain.Result[*domain.Tariff] {
	pd, err := s.party(t.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Tariff](err)
	}

	series, ok := pd.tariffs.Get(t.ID)
	if !ok {
		if !pd.tariffs.SetIfAbsent(t.ID, (&tariffSeries{}).withVersion(t)) {
			return domain.Failed[*domain.Tariff](domain.ErrConcurrentModification)
		}
		tid := s.appendAsset(ctx, cmdAddTariff, t)
		s.publish(ctx, events.TopicTariffAdded, t.PartyKey(), string(t.ID), tid, t)
		return domain.Created(t)
	}

	existing, _ := series.version(t.EffectiveFrom())
	if existing != nil {
		if err := checkTimestamp(existing.LastUpdated, t.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
			return domain.Failed[*domain.Tariff](err)
		}
	}
	if !pd.tariffs.CompareAndSwap(t.ID, series, series.withVersion(t)) {
		return domain.Failed[*domain.Tariff](domain.ErrConcurrentModification)
	}
	if existing == nil {
		tid := s.appendAsset(ctx, cmdAddTariff, t)
		s.publish(ctx, events.TopicTariffAdded, t.PartyKey(), string(t.ID), tid, t)
		return domain.Created(t)
	}
	tid := s.appendAsset(ctx, cmdUpdateTariff, t)
	s.publish(ctx, events.TopicTariffChanged, t.PartyKey(), string(t.ID), tid, t)
	return domain.Updated(t)
}

// UpdateTariff updates an existing version; a missing one is a failure.
func (s *Store) UpdateTariff(ctx context.Context, t *domain.Tariff, allowDowngrades *bool) domain.Result[*domain.Tariff] {
	pd, err := s.party(t.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Tariff](err)
	}
	series, ok := pd.tariffs.Get(t.ID)
	if !ok {
		return domain.Failed[*domain.Tariff](domain.NotFoundErrorf("tariff %s not found", t.ID))
	}
	existing, _ := series.version(t.EffectiveFrom())
	if existing == nil {
		return domain.Failed[*domain.Tariff](domain.NotFoundErrorf("tariff %s has no version effective from %s", t.ID, t.EffectiveFrom().Format(time.RFC3339)))
	}
	if err := checkTimestamp(existing.LastUpdated, t.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.Tariff](err)
	}
	if !pd.tariffs.CompareAndSwap(t.ID, series, series.withVersion(t)) {
		return domain.Failed[*domain.Tariff](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateTariff, t)
	s.publish(ctx, events.TopicTariffChanged, t.PartyKey(), string(t.ID), tid, t)
	return domain.Updated(t)
}

// PatchTariff applies a JSON merge patch to the currently effective version.
func (s *Store) PatchTariff(ctx context.Context, key domain.PartyKey, id domain.TariffID, patch []byte, allowDowngrades *bool) domain.Result[*domain.Tariff] {
	existing, ok := s.GetTariff(key, id, time.Now().UTC())
	if !ok {
		return domain.Failed[*domain.Tariff](domain.NotFoundErrorf("tariff %s not found", id))
	}
	patched, err := mergePatch(existing, patch)
	if err != nil {
		return domain.Failed[*domain.Tariff](err)
	}
	patched.CountryCode = existing.CountryCode
	patched.PartyID = existing.PartyID
	patched.ID = existing.ID
	patched.NotBefore = existing.NotBefore
	return s.UpdateTariff(ctx, patched, allowDowngrades)
}

// RemoveTariff removes a tariff with all its versions.
func (s *Store) RemoveTariff(ctx context.Context, key domain.PartyKey, id domain.TariffID) domain.Result[[]*domain.Tariff] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[[]*domain.Tariff](err)
	}
	series, ok := pd.tariffs.Delete(id)
	if !ok {
		return domain.Failed[[]*domain.Tariff](domain.NotFoundErrorf("tariff %s not found", id))
	}
	tid := s.appendAsset(ctx, cmdRemoveTariff, map[string]any{"party": key, "id": id})
	s.publish(ctx, events.TopicTariffRemoved, key, string(id), tid, series.versions)
	return domain.Removed(series.versions)
}

// RemoveAllTariffs removes every tariff of the party matching the optional
// predicate, returning the removed versions.
func (s *Store) RemoveAllTariffs(ctx context.Context, key domain.PartyKey, match func(*domain.Tariff) bool) ([]*domain.Tariff, error) {
	pd, err := s.party(key)
	if err != nil {
		return nil, err
	}
	var removed []*domain.Tariff
	pd.tariffs.Range(func(id domain.TariffID, series *tariffSeries) bool {
		keep := false
		if match != nil {
			keep = true
			for _, v := range series.versions {
				if match(v) {
					keep = false
					break
				}
			}
		}
		if keep {
			return true
		}
		if cur, ok := pd.tariffs.Delete(id); ok {
			removed = append(removed, cur.versions...)
			tid := s.appendAsset(ctx, cmdRemoveTariff, map[string]any{"party": key, "id": id})
			s.publish(ctx, events.TopicTariffRemoved, key, string(id), tid, cur.versions)
		}
		return true
	})
	return removed, nil
}

// TariffExists reports whether any version of the id is present.
func (s *Store) TariffExists(key domain.PartyKey, id domain.TariffID) bool {
	pd, ok := s.parties.Get(key)
	if !ok {
		return false
	}
	_, ok = pd.tariffs.Get(id)
	return ok
}

// GetTariff resolves the version of the tariff effective at the given
// instant.
func (s *Store) GetTariff(key domain.PartyKey, id domain.TariffID, at time.Time) (*domain.Tariff, bool) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, false
	}
	series, ok := pd.tariffs.Get(id)
	if !ok {
		return nil, false
	}
	return series.effectiveAt(at)
}

// GetTariffVersions returns all versions of a tariff, oldest first.
func (s *Store) GetTariffVersions(key domain.PartyKey, id domain.TariffID) []*domain.Tariff {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	series, ok := pd.tariffs.Get(id)
	if !ok {
		return nil
	}
	return append([]*domain.Tariff(nil), series.versions...)
}

// GetTariffs returns the currently effective version of each tariff
// matching the optional filter.
func (s *Store) GetTariffs(key domain.PartyKey, filter func(*domain.Tariff) bool) []*domain.Tariff {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	var out []*domain.Tariff
	pd.tariffs.Range(func(_ domain.TariffID, series *tariffSeries) bool {
		if t, ok := series.effectiveAt(now); ok && (filter == nil || filter(t)) {
			out = append(out, t)
		}
		return true
	})
	return out
}
