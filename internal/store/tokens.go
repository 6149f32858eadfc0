package store

import (
	"context"
	"fmt"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
)

const (
	cmdAddToken    = "addToken"
	cmdUpdateToken = "updateToken"
	cmdRemoveToken = "removeToken"
)

// AddToken adds a new token status; an existing id is a failure.
func (s *Store) AddToken(ctx context.Context, ts *domain.TokenStatus) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(ts.Token.PartyKey())
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	if !pd.tokens.SetIfAbsent(ts.Token.ID, ts) {
		return domain.Failed[*domain.TokenStatus](domain.AlreadyExistsErrorf("token %s already exists", ts.Token.ID))
	}
	tid := s.appendAsset(ctx, cmdAddToken, ts)
	s.publish(ctx, events.TopicTokenAdded, ts.Token.PartyKey(), string(ts.Token.ID), tid, ts)
	return domain.Created(ts)
}

// AddTokenIfNotExists treats an existing id as a successful no-op.
func (s *Store) AddTokenIfNotExists(ctx context.Context, ts *domain.TokenStatus) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(ts.Token.PartyKey())
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	if !pd.tokens.SetIfAbsent(ts.Token.ID, ts) {
		existing, _ := pd.tokens.Get(ts.Token.ID)
		return domain.NoOperation(existing, "token already exists")
	}
	tid := s.appendAsset(ctx, cmdAddToken, ts)
	s.publish(ctx, events.TopicTokenAdded, ts.Token.PartyKey(), string(ts.Token.ID), tid, ts)
	return domain.Created(ts)
}

// AddOrUpdateToken upserts with the downgrade check on the update path.
// A status flip additionally fires the token-status-changed notification.
func (s *Store) AddOrUpdateToken(ctx context.Context, ts *domain.TokenStatus, allowDowngrades *bool) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(ts.Token.PartyKey())
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	existing, ok := pd.tokens.Get(ts.Token.ID)
	if !ok {
		if !pd.tokens.SetIfAbsent(ts.Token.ID, ts) {
			return domain.Failed[*domain.TokenStatus](domain.ErrConcurrentModification)
		}
		tid := s.appendAsset(ctx, cmdAddToken, ts)
		s.publish(ctx, events.TopicTokenAdded, ts.Token.PartyKey(), string(ts.Token.ID), tid, ts)
		return domain.Created(ts)
	}
	if err := checkTimestamp(existing.LastUpdated(), ts.LastUpdated(), downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	if !pd.tokens.CompareAndSwap(ts.Token.ID, existing, ts) {
		return domain.Failed[*domain.TokenStatus](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateToken, ts)
	s.publish(ctx, events.TopicTokenStatusChanged, ts.Token.PartyKey(), string(ts.Token.ID), tid, ts)
	return domain.Updated(ts)
}

// UpdateToken updates an existing token status; a missing id is a failure.
func (s *Store) UpdateToken(ctx context.Context, ts *domain.TokenStatus, allowDowngrades *bool) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(ts.Token.PartyKey())
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	existing, ok := pd.tokens.Get(ts.Token.ID)
	if !ok {
		return domain.Failed[*domain.TokenStatus](domain.NotFoundErrorf("token %s not found", ts.Token.ID))
	}
	if err := checkTimestamp(existing.LastUpdated(), ts.LastUpdated(), downgradesAllowed(pd, allowDowngrades)); err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	if !pd.tokens.CompareAndSwap(ts.Token.ID, existing, ts) {
		return domain.Failed[*domain.TokenStatus](domain.ErrConcurrentModification)
	}
	tid := s.appendAsset(ctx, cmdUpdateToken, ts)
	s.publish(ctx, events.TopicTokenStatusChanged, ts.Token.PartyKey(), string(ts.Token.ID), tid, ts)
	return domain.Updated(ts)
}

// PatchToken applies a JSON merge patch to the token (not the verdict),
// then funnels through the update path.
func (s *Store) PatchToken(ctx context.Context, key domain.PartyKey, id domain.TokenID, patch []byte, allowDowngrades *bool) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	existing, ok := pd.tokens.Get(id)
	if !ok {
		return domain.Failed[*domain.TokenStatus](domain.NotFoundErrorf("token %s not found", id))
	}
	patchedToken, err := mergePatch(&existing.Token, patch)
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	patchedToken.CountryCode = existing.Token.CountryCode
	patchedToken.PartyID = existing.Token.PartyID
	patchedToken.ID = existing.Token.ID
	return s.UpdateToken(ctx, &domain.TokenStatus{Token: *patchedToken, Status: existing.Status}, allowDowngrades)
}

// RemoveToken removes by id.
func (s *Store) RemoveToken(ctx context.Context, key domain.PartyKey, id domain.TokenID) domain.Result[*domain.TokenStatus] {
	pd, err := s.party(key)
	if err != nil {
		return domain.Failed[*domain.TokenStatus](err)
	}
	removed, ok := pd.tokens.Delete(id)
	if !ok {
		return domain.Failed[*domain.TokenStatus](domain.NotFoundErrorf("token %s not found", id))
	}
	tid := s.appendAsset(ctx, cmdRemoveToken, removed)
	s.publish(ctx, events.TopicTokenRemoved, key, string(id), tid, removed)
	return domain.Removed(removed)
}

// RemoveAllTokens removes the party's tokens matching the optional
// predicate, returning the removed set.
func (s *Store) RemoveAllTokens(ctx context.Context, key domain.PartyKey, match func(*domain.TokenStatus) bool) ([]*domain.TokenStatus, error) {
	pd, err := s.party(key)
	if err != nil {
		return nil, err
	}
	var removed []*domain.TokenStatus
	pd.tokens.Range(func(id domain.TokenID, ts *domain.TokenStatus) bool {
		if match != nil && !match(ts) {
			return true
		}
		if cur, ok := pd.tokens.Delete(id); ok {
			removed = append(removed, cur)
			tid := s.appendAsset(ctx, cmdRemoveToken, cur)
			s.publish(ctx, events.TopicTokenRemoved, key, string(id), tid, cur)
		}
		return true
	})
	return removed, nil
}

// TokenExists reports whether the id is present in memory.
func (s *Store) TokenExists(key domain.PartyKey, id domain.TokenID) bool {
	pd, ok := s.parties.Get(key)
	if !ok {
		return false
	}
	_, ok = pd.tokens.Get(id)
	return ok
}

// GetToken looks up a token status. On a local miss the OnVerifyToken hook
// is consulted: the in-memory map acts as a warm cache and override in
// front of an authoritative external verifier. The hook's result is not
// cached back.
func (s *Store) GetToken(ctx context.Context, key domain.PartyKey, id domain.TokenID) (*domain.TokenStatus, bool, error) {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil, false, nil
	}
	if ts, ok := pd.tokens.Get(id); ok {
		return ts, true, nil
	}
	if s.opts.OnVerifyToken == nil {
		return nil, false, nil
	}
	ts, err := s.opts.OnVerifyToken(ctx, key, id)
	if err != nil {
		return nil, false, fmt.Errorf("token verification fallback failed: %w", err)
	}
	return ts, ts != nil, nil
}

// GetTokens returns the party's in-memory token statuses matching the
// optional filter.
func (s *Store) GetTokens(key domain.PartyKey, filter func(*domain.TokenStatus) bool) []*domain.TokenStatus {
	pd, ok := s.parties.Get(key)
	if !ok {
		return nil
	}
	var out []*domain.TokenStatus
	pd.tokens.Range(func(_ domain.TokenID, ts *domain.TokenStatus) bool {
		if filter == nil || filter(ts) {
			out = append(out, ts)
		}
		return true
	})
	return out
}
