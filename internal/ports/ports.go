// Package ports declares the interfaces the core depends on: the command
// log, the outbound OCPI client used during the credentials handshake, the
// event sink and the slow-storage lookup hooks.
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emobix/ocpi-node/internal/domain"
)

// Log names used by the registry and the party store.
const (
	LogRemoteParties = "remoteParties"
	LogAssets        = "assets"
)

// LoggedCommand is one replayable entry of a command log.
type LoggedCommand struct {
	Timestamp  time.Time       `json:"ts"`
	Command    string          `json:"cmd"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	TrackingID string          `json:"tracking_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
}

// CommandLog is the append-only persistence behind the in-memory state.
// Append must observe ctx; Load replays a whole log in append order.
type CommandLog interface {
	Append(ctx context.Context, logName, command string, payload any, trackingID, userID string) error
	Load(logName string) ([]LoggedCommand, error)
}

// VersionsClient calls a counterparty's versions endpoints. Used only inside
// the credentials handshake.
type VersionsClient interface {
	GetVersions(ctx context.Context, versionsURL, accessToken string) ([]domain.VersionInformation, error)
	GetVersionDetails(ctx context.Context, detailsURL, accessToken string) (*domain.VersionDetails, error)
}

// EventSink forwards serialized entity-change events out of process.
type EventSink interface {
	Publish(subject string, data []byte) error
}

// TokenLookup is the slow-path fallback consulted when a token id misses the
// in-memory map. Returning (nil, nil) means authoritatively not found.
type TokenLookup func(ctx context.Context, key domain.PartyKey, id domain.TokenID) (*domain.TokenStatus, error)

// SessionLookup is the fallback for sessions evicted from memory.
type SessionLookup func(ctx context.Context, key domain.PartyKey, id domain.SessionID) (*domain.Session, error)

// CDRLookup is the fallback for CDRs evicted from memory.
type CDRLookup func(ctx context.Context, key domain.PartyKey, id domain.CDRID) (*domain.CDR, error)
