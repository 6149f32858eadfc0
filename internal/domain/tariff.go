package domain

import "time"

// TariffDimension is the unit a price component is expressed in.
type TariffDimension string

const (
	TariffDimensionEnergy      TariffDimension = "ENERGY"
	TariffDimensionFlat        TariffDimension = "FLAT"
	TariffDimensionParkingTime TariffDimension = "PARKING_TIME"
	TariffDimensionTime        TariffDimension = "TIME"
)

// PriceComponent prices one dimension of charging.
type PriceComponent struct {
	Type     TariffDimension `json:"type"`
	Price    float64         `json:"price"`
	VAT      float64         `json:"vat,omitempty"`
	StepSize int             `json:"step_size"`
}

// TariffElement groups price components with optional restrictions.
type TariffElement struct {
	PriceComponents []PriceComponent  `json:"price_components"`
	Restrictions    map[string]string `json:"restrictions,omitempty"`
}

// Tariff is one version of a tariff. Several versions of the same tariff id
// can coexist, distinguished by NotBefore; lookups resolve the version
// effective at a given instant.
type Tariff struct {
	CountryCode CountryCode     `json:"country_code"`
	PartyID     PartyID         `json:"party_id"`
	ID          TariffID        `json:"id"`
	Currency    string          `json:"currency"`
	Type        string          `json:"type,omitempty"`
	Elements    []TariffElement `json:"elements"`
	MinPrice    *float64        `json:"min_price,omitempty"`
	MaxPrice    *float64        `json:"max_price,omitempty"`
	NotBefore   *time.Time      `json:"start_date_time,omitempty"`
	NotAfter    *time.Time      `json:"end_date_time,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
}

// PartyKey returns the key of the owning party.
func (t *Tariff) PartyKey() PartyKey {
	return PartyKey{CountryCode: t.CountryCode, PartyID: t.PartyID}
}

// EffectiveFrom returns NotBefore, or the zero time when the version has no
// lower bound (always effective).
func (t *Tariff) EffectiveFrom() time.Time {
	if t.NotBefore == nil {
		return time.Time{}
	}
	return *t.NotBefore
}
