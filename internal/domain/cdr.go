package domain

import "time"

// CDRLocation is the (filtered) location snapshot embedded in a CDR.
type CDRLocation struct {
	ID          LocationID  `json:"id"`
	Name        string      `json:"name,omitempty"`
	Address     string      `json:"address"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	Coordinates GeoLocation `json:"coordinates"`
	EVSEUID     EVSEUID     `json:"evse_uid"`
	EVSEID      string      `json:"evse_id"`
	ConnectorID ConnectorID `json:"connector_id"`
}

// CDR is a charge detail record: the immutable bill of a finished session.
type CDR struct {
	CountryCode      CountryCode      `json:"country_code"`
	PartyID          PartyID          `json:"party_id"`
	ID               CDRID            `json:"id"`
	StartDateTime    time.Time        `json:"start_date_time"`
	EndDateTime      time.Time        `json:"end_date_time"`
	SessionID        SessionID        `json:"session_id,omitempty"`
	TokenID          TokenID          `json:"cdr_token_uid,omitempty"`
	AuthMethod       string           `json:"auth_method"`
	Location         CDRLocation      `json:"cdr_location"`
	Currency         string           `json:"currency"`
	Tariffs          []Tariff         `json:"tariffs,omitempty"`
	ChargingPeriods  []ChargingPeriod `json:"charging_periods"`
	TotalCost        float64          `json:"total_cost"`
	TotalEnergy      float64          `json:"total_energy"`
	TotalTime        float64          `json:"total_time"`
	TotalParkingTime *float64         `json:"total_parking_time,omitempty"`
	Remark           string           `json:"remark,omitempty"`
	InvoiceReference string           `json:"invoice_reference_id,omitempty"`
	Credit           bool             `json:"credit,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// PartyKey returns the key of the owning party.
func (c *CDR) PartyKey() PartyKey {
	return PartyKey{CountryCode: c.CountryCode, PartyID: c.PartyID}
}
