package domain

// BusinessDetails describes the organisation behind a party.
type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// CredentialsRole is one (country, party, role) tuple a party acts under.
type CredentialsRole struct {
	CountryCode     CountryCode     `json:"country_code"`
	PartyID         PartyID         `json:"party_id"`
	Role            Role            `json:"role"`
	BusinessDetails BusinessDetails `json:"business_details"`
}

// Key returns the party key of this role.
func (r CredentialsRole) Key() PartyKey {
	return PartyKey{CountryCode: r.CountryCode, PartyID: r.PartyID}
}

// Credentials is the OCPI credentials object exchanged during registration:
// the token the receiver shall use when calling the sender, the sender's
// versions endpoint, and the roles the sender acts under.
type Credentials struct {
	Token string            `json:"token"`
	URL   string            `json:"url"`
	Roles []CredentialsRole `json:"roles"`
}

// ModuleID identifies an OCPI module in a version-details endpoint list.
type ModuleID string

const (
	ModuleCredentials ModuleID = "credentials"
	ModuleLocations   ModuleID = "locations"
	ModuleTariffs     ModuleID = "tariffs"
	ModuleSessions    ModuleID = "sessions"
	ModuleTokens      ModuleID = "tokens"
	ModuleCDRs        ModuleID = "cdrs"
)

// InterfaceRole distinguishes the sender and receiver side of a module.
type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
)

// VersionInformation is one entry of a versions endpoint response.
type VersionInformation struct {
	Version VersionID `json:"version"`
	URL     string    `json:"url"`
}

// Endpoint is one module endpoint in a version-details response.
type Endpoint struct {
	Identifier ModuleID      `json:"identifier"`
	Role       InterfaceRole `json:"role"`
	URL        string        `json:"url"`
}

// VersionDetails is the response of a version-details endpoint.
type VersionDetails struct {
	Version   VersionID  `json:"version"`
	Endpoints []Endpoint `json:"endpoints"`
}
