package domain

import "time"

// SessionStatus is the OCPI charging session status.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "ACTIVE"
	SessionStatusCompleted   SessionStatus = "COMPLETED"
	SessionStatusInvalid     SessionStatus = "INVALID"
	SessionStatusPending     SessionStatus = "PENDING"
	SessionStatusReservation SessionStatus = "RESERVATION"
)

// ChargingPeriod is one period of a session or CDR with its dimensions.
type ChargingPeriod struct {
	StartDateTime time.Time      `json:"start_date_time"`
	Dimensions    []CDRDimension `json:"dimensions"`
	TariffID      TariffID       `json:"tariff_id,omitempty"`
}

// CDRDimension is a measured quantity within a charging period.
type CDRDimension struct {
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

// Session is an ongoing or finished charging session.
type Session struct {
	CountryCode     CountryCode      `json:"country_code"`
	PartyID         PartyID          `json:"party_id"`
	ID              SessionID        `json:"id"`
	StartDateTime   time.Time        `json:"start_date_time"`
	EndDateTime     *time.Time       `json:"end_date_time,omitempty"`
	KWh             float64          `json:"kwh"`
	TokenID         TokenID          `json:"cdr_token_uid,omitempty"`
	AuthMethod      string           `json:"auth_method"`
	LocationID      LocationID       `json:"location_id"`
	EVSEUID         EVSEUID          `json:"evse_uid,omitempty"`
	ConnectorID     ConnectorID      `json:"connector_id,omitempty"`
	Currency        string           `json:"currency"`
	ChargingPeriods []ChargingPeriod `json:"charging_periods,omitempty"`
	TotalCost       *float64         `json:"total_cost,omitempty"`
	Status          SessionStatus    `json:"status"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// PartyKey returns the key of the owning party.
func (s *Session) PartyKey() PartyKey {
	return PartyKey{CountryCode: s.CountryCode, PartyID: s.PartyID}
}
