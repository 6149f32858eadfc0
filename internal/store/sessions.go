package store

import (
	"context"
	"fmt"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

const (
	cmdAddSession    = "addSession"
	cmdUpdateSession = "updateSession"
	cmdRemoveSession = "removeSession"
)

// AddSession adds a new session; an existing id is a failure.
func (s *Store) AddSession(ctx context.Context, sess *domain.Session) domain.Result[*domain.Session] {
	pd, err := s.party(sess.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	if !pd.sessions.SetIfAbsent(sess.ID, sess) {
		return domain.Failed[*domain.Session](domain.AlreadyExistsErrorf("session %s already exists", sess.ID))
	}
	tid := s.appendAsset(ctx, cmdAddSession, sess)
	s.publish(ctx, events.TopicSessionAdded, sess.PartyKey(), string(sess.ID), tid, sess)
	return domain.Created(sess)
}

// AddSessionIfNotExists treats an existing id as a successful no-op.
func (s *Store) AddSessionIfNotExists(ctx context.Context, sess *domain.Session) domain.Result[*domain.Session] {
	pd, err := s.party(sess.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	if !pd.sessions.SetIfAbsent(sess.ID, sess) {
		existing, _ := pd.sessions.Get(sess.ID)
		return domain.NoOperation(existing, "session already exists")
	}
	tid := s.appendAsset(ctx, cmdAddSession, sess)
	s.publish(ctx, events.TopicSessionAdded, sess.PartyKey(), string(sess.ID), tid, sess)
	return domain.Created(sess)
}

// AddOrUpdateSession upserts with the downgrade check on the update path.
func (s *Store) AddOrUpdateSession(ctx context.Context, sess *domain.Session, allowDowngrades *bool) domain.Result[*domain.Session] {
	pd, err := s.party(sess.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	existing, ok := pd.sessions.Get(sess.ID)
	if !ok {
		if !pd.sessions.SetIfAbsent(sess.ID, sess) {
			return domain.Failed[*domain.Session](domain.ErrConcurrentModification)
		}
		tid := s.appendAsset(ctx, cmdAddSession, sess)
		s.publish(ctx, events.TopicSessionAdded, sess.PartyKey(), string(sess.ID), tid, sess)
		return domain.Created(sess)
	}
	if err := checkTimestamp(existing.LastUpdated, sess.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.Session](err)
	}
	if !pd.sessions.CompareAndSwap(sess.ID, existing, sess) {
		return domain.Failed[*domain.Session](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateSession, sess)
	s.publish(ctx, events.TopicSessionChanged, sess.PartyKey(), string(sess.ID), tid, sess)
	return domain.Updated(sess)
}

// UpdateSession updates an existing session; a missing id is a failure.
func (s *Store) UpdateSession(ctx context.Context, sess *domain.Session, allowDowngrades *bool) domain.Result[*domain.Session] {
	pd, err := s.party(sess.PartyKey())
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	existing, ok := pd.sessions.Get(sess.ID)
	if !ok {
		return domain.Failed[*domain.Session](domain.NotFoundErrorf("session %s not found", sess.ID))
	}
	if err := checkTimestamp(existing.LastUpdated, sess.LastUpdated, downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.Session](err)
	}
	if !pd.sessions.CompareAndSwap(sess.ID, existing, sess) {
		return domain.Failed[*domain.Session](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateSession, sess)
	s.publish(ctx, events.TopicSessionChanged, sess.PartyKey(), string(sess.ID), tid, sess)
	return domain.Updated(sess)
}

// PatchSession applies a JSON merge patch, then funnels through the update
// path. Patch failures take precedence.
func (s *Store) PatchSession(ctx context.Context, key domain.PartyKey, id domain.SessionID, patch []byte, allowDowngrades *bool) domain.Result[*domain.Session] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	existing, ok := pd.sessions.Get(id)
	if !ok {
		return domain.Failed[*domain.Session](domain.NotFoundErrorf("session %s not found", id))
	}
	patched, err := mergePatch(existing, patch)
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	patched.CountryCode = existing.CountryCode
	patched.PartyID = existing.PartyID
	patched.ID = existing.ID
	return s.UpdateSession(ctx, patched, allowDowngrades)
}

// RemoveSession removes by id.
func (s *Store) RemoveSession(ctx context.Context, key domain.PartyKey, id domain.SessionID) domain.Result[*domain.Session] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.Session](err)
	}
	removed, ok := pd.sessions.Delete(id)
	if !ok {
		return domain.Failed[*domain.Session](domain.NotFoundErrorf("session %s not found", id))
	}
	tid := s.appendAsset(ctx, cmdRemoveSession, removed)
	s.publish(ctx, events.TopicSessionRemoved, key, string(id), tid, removed)
	return domain.Removed(removed)
}

// RemoveAllSessions removes the party's sessions matching the optional
// predicate, returning the removed set.
func (s *Store) RemoveAllSessions(ctx context.Context, key domain.PartyKey, match func(*domain.Session) bool) ([]*domain.Session, error) {
	pd, err := s.party(key)
	if err != nil {
		return nil, err
	}
	var removed []*domain.Session
	pd.sessions.Range(func(id domain.SessionID, sess *domain.Session) bool {
		if match != nil && !match(sess) {
			return true
		}
		if cur, ok := pd.sessions.Delete(id); ok {
			removed = append(removed, cur)
			tid := s.appendAsset(ctx, cmdRemoveSession, cur)
			s.publish(ctx, events.TopicSessionRemoved, key, string(id), tid, cur)
		}
		return true
	})
	return removed, nil
}

// SessionExists reports whether the id is present in memory.
func (s *Store) SessionExists(key domain.PartyKey, id domain.SessionID) bool {
	pd, ok := s.parties.Get(key)
	if !ok {
		return false
	}
	_, ok = pd.sessions.Get(id)
	return ok
}

// GetSession looks up a session, falling back to the injected slow-storage
// hook on a local miss. Fallback results are not cached back.
func (s *Store) GetSession(ctx context.Context, key domain.PartyKey, id domain.SessionID) (*domain.Session, bool, error) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, false, nil
	}
	if sess, ok := pd.sessions.Get(id); ok {
		return sess, true, nil
	}
	if s.opts.OnSessionLookup == nil {
		return nil, false, nil
	}
	sess, err := s.opts.OnSessionLookup(ctx, key, id)
	if err != nil {
		return nil, false, fmt.Errorf("session fallback lookup failed: %w", err)
	}
	return sess, sess != nil, nil
}

// GetSessions returns the party's in-memory sessions matching the optional
// filter.
func (s *Store) GetSessions(key domain.PartyKey, filter func(*domain.Session) bool) []*domain.Session {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	var out []*domain.Session
	pd.sessions.Range(func(_ domain.SessionID, sess *domain.Session) bool {
		if filter == nil || filter(sess) {
			out = append(out, sess)
		}
		return true
	})
	return out
}
