package domain

import (
	"time"
)

// AccessStatus is the status of an access token this node issued to a
// counterparty.
type AccessStatus string

const (
	AccessStatusAllowed AccessStatus = "ALLOWED"
	AccessStatusBlocked AccessStatus = "BLOCKED"
)

// PartyStatus enables or disables a registered counterparty as a whole.
type PartyStatus string

const (
	PartyStatusEnabled  PartyStatus = "ENABLED"
	PartyStatusDisabled PartyStatus = "DISABLED"
)

// RemoteStatus is the last known reachability of a counterparty.
type RemoteStatus string

const (
	RemoteStatusOnline  RemoteStatus = "ONLINE"
	RemoteStatusOffline RemoteStatus = "OFFLINE"
	RemoteStatusUnknown RemoteStatus = "UNKNOWN"
)

// TOTPConfig configures time-based one-time-password matching for a local
// access token. SharedSecret is base32-encoded.
type TOTPConfig struct {
	SharedSecret string        `json:"shared_secret"`
	ValidityTime time.Duration `json:"validity_time"`
	Length       int           `json:"length"`
}

// LocalAccessInfo is an access token this node issued to a counterparty,
// i.e. what the counterparty presents when calling us.
type LocalAccessInfo struct {
	AccessToken string       `json:"access_token"`
	Status      AccessStatus `json:"status"`
	NotBefore   *time.Time   `json:"not_before,omitempty"`
	NotAfter    *time.Time   `json:"not_after,omitempty"`
	// VersionsURL is set once the counterparty completed the credentials
	// handshake with this token (its own versions endpoint).
	VersionsURL string      `json:"versions_url,omitempty"`
	TOTP        *TOTPConfig `json:"totp,omitempty"`
}

// Registered reports whether the token completed a credentials handshake.
func (a LocalAccessInfo) Registered() bool {
	return a.VersionsURL != ""
}

// ValidAt checks the optional validity window.
func (a LocalAccessInfo) ValidAt(t time.Time) bool {
	if a.NotBefore != nil && t.Before(*a.NotBefore) {
		return false
	}
	if a.NotAfter != nil && t.After(*a.NotAfter) {
		return false
	}
	return true
}

// RemoteAccessInfo is the credential set this node uses when calling the
// counterparty: their versions URL and the token they issued to us.
type RemoteAccessInfo struct {
	AccessToken       string       `json:"access_token"`
	VersionsURL       string       `json:"versions_url"`
	VersionIDs        []VersionID  `json:"version_ids,omitempty"`
	SelectedVersionID VersionID    `json:"selected_version_id,omitempty"`
	Status            RemoteStatus `json:"status"`
}

// RemoteParty is one registered counterparty. Instances are immutable after
// construction: every registry update replaces the stored instance with a
// fresh copy, which is what makes compare-and-swap updates meaningful.
type RemoteParty struct {
	ID                RemotePartyID      `json:"id"`
	Roles             []CredentialsRole  `json:"roles"`
	LocalAccessInfos  []LocalAccessInfo  `json:"local_access_infos,omitempty"`
	RemoteAccessInfos []RemoteAccessInfo `json:"remote_access_infos,omitempty"`
	Status            PartyStatus        `json:"status"`
	LastUpdated       time.Time          `json:"last_updated"`
}

// Key returns the party key of the first credentials role.
func (p *RemoteParty) Key() PartyKey {
	if len(p.Roles) == 0 {
		return PartyKey{}
	}
	return PartyKey{CountryCode: p.Roles[0].CountryCode, PartyID: p.Roles[0].PartyID}
}

// HasRole reports whether any credentials role matches the given role.
func (p *RemoteParty) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

// HasKey reports whether any credentials role carries the given party key.
func (p *RemoteParty) HasKey(key PartyKey) bool {
	for _, r := range p.Roles {
		if r.CountryCode == key.CountryCode && r.PartyID == key.PartyID {
			return true
		}
	}
	return false
}

// LocalToken returns the local access info for the given token, if any.
func (p *RemoteParty) LocalToken(token string) (LocalAccessInfo, bool) {
	for _, ai := range p.LocalAccessInfos {
		if ai.AccessToken == token {
			return ai, true
		}
	}
	return LocalAccessInfo{}, false
}

// WithoutLocalToken returns a copy of the party lacking the given local
// access token. Roles and remote access infos are shared, the local access
// slice is re-built.
func (p *RemoteParty) WithoutLocalToken(token string) *RemoteParty {
	out := *p
	out.LocalAccessInfos = make([]LocalAccessInfo, 0, len(p.LocalAccessInfos))
	for _, ai := range p.LocalAccessInfos {
		if ai.AccessToken != token {
			out.LocalAccessInfos = append(out.LocalAccessInfos, ai)
		}
	}
	out.LastUpdated = time.Now().UTC()
	return &out
}

// Clone returns a deep-enough copy for mutate-and-swap updates.
func (p *RemoteParty) Clone() *RemoteParty {
	out := *p
	out.Roles = append([]CredentialsRole(nil), p.Roles...)
	out.LocalAccessInfos = append([]LocalAccessInfo(nil), p.LocalAccessInfos...)
	out.RemoteAccessInfos = append([]RemoteAccessInfo(nil), p.RemoteAccessInfos...)
	return &out
}
