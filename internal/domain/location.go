package domain

import "time"

// EVSEStatus is the OCPI EVSE status.
type EVSEStatus string

const (
	EVSEStatusAvailable   EVSEStatus = "AVAILABLE"
	EVSEStatusBlocked     EVSEStatus = "BLOCKED"
	EVSEStatusCharging    EVSEStatus = "CHARGING"
	EVSEStatusInoperative EVSEStatus = "INOPERATIVE"
	EVSEStatusOutOfOrder  EVSEStatus = "OUTOFORDER"
	EVSEStatusPlanned     EVSEStatus = "PLANNED"
	EVSEStatusRemoved     EVSEStatus = "REMOVED"
	EVSEStatusReserved    EVSEStatus = "RESERVED"
	EVSEStatusUnknown     EVSEStatus = "UNKNOWN"
)

// GeoLocation is a WGS84 coordinate pair.
type GeoLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Connector is the lowest level of the location hierarchy: one plug.
type Connector struct {
	ID          ConnectorID `json:"id"`
	Standard    string      `json:"standard"`
	Format      string      `json:"format"`
	PowerType   string      `json:"power_type"`
	MaxVoltage  int         `json:"max_voltage"`
	MaxAmperage int         `json:"max_amperage"`
	MaxPowerW   int         `json:"max_electric_power,omitempty"`
	TariffIDs   []TariffID  `json:"tariff_ids,omitempty"`
	LastUpdated time.Time   `json:"last_updated"`
}

// EVSE is a charging position within a location, owning its connectors.
type EVSE struct {
	UID          EVSEUID                   `json:"uid"`
	EVSEID       string                    `json:"evse_id,omitempty"`
	Status       EVSEStatus                `json:"status"`
	Capabilities []string                  `json:"capabilities,omitempty"`
	Connectors   map[ConnectorID]Connector `json:"connectors"`
	Coordinates  *GeoLocation              `json:"coordinates,omitempty"`
	FloorLevel   string                    `json:"floor_level,omitempty"`
	Directions   []string                  `json:"directions,omitempty"`
	LastUpdated  time.Time                 `json:"last_updated"`
}

// Clone returns a copy with its own connector map.
func (e *EVSE) Clone() *EVSE {
	out := *e
	out.Connectors = make(map[ConnectorID]Connector, len(e.Connectors))
	for id, c := range e.Connectors {
		out.Connectors[id] = c
	}
	return &out
}

// Location is the root of the location hierarchy, owned by a party key.
type Location struct {
	CountryCode  CountryCode       `json:"country_code"`
	PartyID      PartyID           `json:"party_id"`
	ID           LocationID        `json:"id"`
	Publish      bool              `json:"publish"`
	Name         string            `json:"name,omitempty"`
	Address      string            `json:"address"`
	City         string            `json:"city"`
	PostalCode   string            `json:"postal_code,omitempty"`
	Country      string            `json:"country"`
	Coordinates  GeoLocation       `json:"coordinates"`
	EVSEs        map[EVSEUID]*EVSE `json:"evses,omitempty"`
	Operator     *BusinessDetails  `json:"operator,omitempty"`
	TimeZone     string            `json:"time_zone,omitempty"`
	OpeningHours string            `json:"opening_times,omitempty"`
	LastUpdated  time.Time         `json:"last_updated"`
}

// PartyKey returns the key of the owning party.
func (l *Location) PartyKey() PartyKey {
	return PartyKey{CountryCode: l.CountryCode, PartyID: l.PartyID}
}

// Clone returns a copy with its own EVSE map; nested EVSEs are cloned too so
// a swapped-in location never aliases mutable state of its predecessor.
func (l *Location) Clone() *Location {
	out := *l
	out.EVSEs = make(map[EVSEUID]*EVSE, len(l.EVSEs))
	for uid, e := range l.EVSEs {
		out.EVSEs[uid] = e.Clone()
	}
	return &out
}

// GetEVSE looks up an EVSE by uid.
func (l *Location) GetEVSE(uid EVSEUID) (*EVSE, bool) {
	e, ok := l.EVSEs[uid]
	return e, ok
}
