// Package versions serves this node's version discovery endpoints: the
// versions list and the per-version module endpoint catalogue, which varies
// with the counterparty's role.
package versions

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
)

type Service struct {
	log     *zap.Logger
	baseURL string
}

// NewService builds the catalogue on top of the node's external base URL
// (e.g. "https://ocpi.example.com/ocpi").
func NewService(baseURL string, log *zap.Logger) *Service {
	return &Service{
		log:     log,
		baseURL: baseURL,
	}
}

// VersionsURL is this node's own versions endpoint, advertised in
// credentials payloads.
func (s *Service) VersionsURL() string {
	return s.baseURL + "/versions"
}

// Versions lists the protocol versions this node speaks.
func (s *Service) Versions() []domain.VersionInformation {
	return []domain.VersionInformation{{
		Version: domain.VersionOCPI221,
		URL:     fmt.Sprintf("%s/versions/%s", s.baseURL, domain.VersionOCPI221),
	}}
}

// Details lists the module endpoints offered to a counterparty acting
// under the given role. An empty role means an anonymous (open data)
// caller, which only sees the public locations feed.
func (s *Service) Details(counterpartyRole domain.Role) domain.VersionDetails {
	module := func(id domain.ModuleID, role domain.InterfaceRole) domain.Endpoint {
		return domain.Endpoint{
			Identifier: id,
			Role:       role,
			URL:        fmt.Sprintf("%s/%s/%s", s.baseURL, domain.VersionOCPI221, id),
		}
	}

	endpoints := []domain.Endpoint{
		module(domain.ModuleCredentials, domain.InterfaceReceiver),
	}

	switch counterpartyRole {
	case domain.RoleCPO:
		// A CPO pushes its charging infrastructure and billing data to us
		// and pulls our tokens.
		endpoints = append(endpoints,
			module(domain.ModuleLocations, domain.InterfaceReceiver),
			module(domain.ModuleTariffs, domain.InterfaceReceiver),
			module(domain.ModuleSessions, domain.InterfaceReceiver),
			module(domain.ModuleCDRs, domain.InterfaceReceiver),
			module(domain.ModuleTokens, domain.InterfaceSender),
		)
	case domain.RoleEMSP:
		// An eMSP pushes tokens to us and pulls infrastructure data.
		endpoints = append(endpoints,
			module(domain.ModuleLocations, domain.InterfaceSender),
			module(domain.ModuleTariffs, domain.InterfaceSender),
			module(domain.ModuleSessions, domain.InterfaceSender),
			module(domain.ModuleCDRs, domain.InterfaceSender),
			module(domain.ModuleTokens, domain.InterfaceReceiver),
		)
	case "":
		// Anonymous open-data access.
		endpoints = []domain.Endpoint{
			module(domain.ModuleLocations, domain.InterfaceSender),
		}
	default:
		s.log.Debug("Counterparty role without dedicated endpoint set",
			zap.String("role", string(counterpartyRole)),
		)
	}

	return domain.VersionDetails{
		Version:   domain.VersionOCPI221,
		Endpoints: endpoints,
	}
}
