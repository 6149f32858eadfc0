package domain

import (
	"fmt"
	"strings"
)

// CountryCode is an ISO 3166-1 alpha-2 country code as used by OCPI
// (e.g. "DE", "NL"). Always stored upper-case.
type CountryCode string

// PartyID is the 3-character OCPI party id (e.g. "ABC").
type PartyID string

// Role is an OCPI v2.2.1 party role.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHub   Role = "HUB"
	RoleNAP   Role = "NAP"
	RoleNSP   Role = "NSP"
	RoleSCSP  Role = "SCSP"
	RoleOther Role = "OTHER"
)

// PartyKey identifies an operating party: the (country code, party id) pair
// that shards every party-owned collection. Value type, usable as a map key.
type PartyKey struct {
	CountryCode CountryCode `json:"country_code"`
	PartyID     PartyID     `json:"party_id"`
}

func NewPartyKey(cc, pid string) PartyKey {
	return PartyKey{
		CountryCode: CountryCode(strings.ToUpper(strings.TrimSpace(cc))),
		PartyID:     PartyID(strings.ToUpper(strings.TrimSpace(pid))),
	}
}

func (k PartyKey) String() string {
	return fmt.Sprintf("%s-%s", k.CountryCode, k.PartyID)
}

func (k PartyKey) IsZero() bool {
	return k.CountryCode == "" && k.PartyID == ""
}

// Compare returns -1, 0 or 1 ordering keys by country code, then party id.
func (k PartyKey) Compare(other PartyKey) int {
	if c := strings.Compare(string(k.CountryCode), string(other.CountryCode)); c != 0 {
		return c
	}
	return strings.Compare(string(k.PartyID), string(other.PartyID))
}

// RemotePartyID identifies one registered counterparty in the registry.
// Canonical form: "<country>-<party>_<role>".
type RemotePartyID string

func NewRemotePartyID(key PartyKey, role Role) RemotePartyID {
	return RemotePartyID(fmt.Sprintf("%s_%s", key, role))
}

// Entity identifiers. All are case-sensitive strings per OCPI.
type (
	LocationID  string
	EVSEUID     string
	ConnectorID string
	TariffID    string
	SessionID   string
	TokenID     string
	CDRID       string
	VersionID   string
)

// VersionOCPI221 is the only protocol version this node speaks.
const VersionOCPI221 VersionID = "2.2.1"
