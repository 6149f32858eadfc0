package domain

import "time"

// TokenType is the physical or virtual kind of a charging token.
type TokenType string

const (
	TokenTypeAdHocUser TokenType = "AD_HOC_USER"
	TokenTypeAppUser   TokenType = "APP_USER"
	TokenTypeRFID      TokenType = "RFID"
	TokenTypeOther     TokenType = "OTHER"
)

// AllowedType is the authorization verdict attached to a token.
type AllowedType string

const (
	AllowedTypeAllowed    AllowedType = "ALLOWED"
	AllowedTypeBlocked    AllowedType = "BLOCKED"
	AllowedTypeExpired    AllowedType = "EXPIRED"
	AllowedTypeNoCredit   AllowedType = "NO_CREDIT"
	AllowedTypeNotAllowed AllowedType = "NOT_ALLOWED"
)

// Token is an eMSP charging token (RFID card, app account, ...).
type Token struct {
	CountryCode  CountryCode `json:"country_code"`
	PartyID      PartyID     `json:"party_id"`
	ID           TokenID     `json:"uid"`
	Type         TokenType   `json:"type"`
	ContractID   string      `json:"contract_id"`
	VisualNumber string      `json:"visual_number,omitempty"`
	Issuer       string      `json:"issuer"`
	GroupID      string      `json:"group_id,omitempty"`
	Valid        bool        `json:"valid"`
	Whitelist    string      `json:"whitelist"`
	Language     string      `json:"language,omitempty"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// PartyKey returns the key of the owning party.
func (t *Token) PartyKey() PartyKey {
	return PartyKey{CountryCode: t.CountryCode, PartyID: t.PartyID}
}

// TokenStatus pairs a token with its authorization verdict. This is what the
// party store keeps per token id.
type TokenStatus struct {
	Token  Token       `json:"token"`
	Status AllowedType `json:"status"`
}

// LastUpdated exposes the wrapped token's timestamp for downgrade checks.
func (ts *TokenStatus) LastUpdated() time.Time {
	return ts.Token.LastUpdated
}
