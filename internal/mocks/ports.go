package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ports"
)

// MockVersionsClient is a mock implementation of the VersionsClient interface
type MockVersionsClient struct {
	GetVersionsFunc       func(ctx context.Context, versionsURL, accessToken string) ([]domain.VersionInformation, error)
	GetVersionDetailsFunc func(ctx context.Context, detailsURL, accessToken string) (*domain.VersionDetails, error)
}

func (m *MockVersionsClient) GetVersions(ctx context.Context, versionsURL, accessToken string) ([]domain.VersionInformation, error) {
	if m.GetVersionsFunc != nil {
		return m.GetVersionsFunc(ctx, versionsURL, accessToken)
	}
	return []domain.VersionInformation{}, nil
}

func (m *MockVersionsClient) GetVersionDetails(ctx context.Context, detailsURL, accessToken string) (*domain.VersionDetails, error) {
	if m.GetVersionDetailsFunc != nil {
		return m.GetVersionDetailsFunc(ctx, detailsURL, accessToken)
	}
	return &domain.VersionDetails{}, nil
}

// MockCommandLog is an in-memory CommandLog that records every append, so
// tests can assert on what got logged and feed it back through Load.
type MockCommandLog struct {
	AppendFunc func(ctx context.Context, logName, command string, payload any, trackingID, userID string) error

	mu      sync.Mutex
	entries map[string][]ports.LoggedCommand
}

func NewMockCommandLog() *MockCommandLog {
	return &MockCommandLog{entries: make(map[string][]ports.LoggedCommand)}
}

func (m *MockCommandLog) Append(ctx context.Context, logName, command string, payload any, trackingID, userID string) error {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(ctx, logName, command, payload, trackingID, userID); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[logName] = append(m.entries[logName], ports.LoggedCommand{
		Command:    command,
		Payload:    raw,
		TrackingID: trackingID,
		UserID:     userID,
	})
	return nil
}

func (m *MockCommandLog) Load(logName string) ([]ports.LoggedCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.LoggedCommand(nil), m.entries[logName]...), nil
}

// Entries returns a copy of everything appended to the named log.
func (m *MockCommandLog) Entries(logName string) []ports.LoggedCommand {
	entries, _ := m.Load(logName)
	return entries
}

// MockEventSink records serialized events by subject.
type MockEventSink struct {
	PublishFunc func(subject string, data []byte) error

	mu        sync.Mutex
	published []SinkMessage
}

type SinkMessage struct {
	Subject string
	Data    []byte
}

func (m *MockEventSink) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(subject, data); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, SinkMessage{Subject: subject, Data: data})
	return nil
}

func (m *MockEventSink) Published() []SinkMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SinkMessage(nil), m.published...)
}
