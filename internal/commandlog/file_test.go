package commandlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAppendAndLoad(t *testing.T) {
	l, err := NewFileLog(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Append(ctx, "assets", "addThing", testPayload{Name: "a", Count: 1}, "track-1", "user-1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(ctx, "assets", "removeThing", testPayload{Name: "a", Count: 2}, "", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.Load("assets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Command != "addThing" || entries[1].Command != "removeThing" {
		t.Fatalf("replay out of order: %q, %q", entries[0].Command, entries[1].Command)
	}
	if entries[0].TrackingID != "track-1" || entries[0].UserID != "user-1" {
		t.Fatalf("tracking fields lost: %+v", entries[0])
	}

	var p testPayload
	if err := json.Unmarshal(entries[0].Payload, &p); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if p.Name != "a" || p.Count != 1 {
		t.Fatalf("unexpected payload %+v", p)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("entry timestamp not set")
	}
}

func TestLoadMissingLogIsEmpty(t *testing.T) {
	l, err := NewFileLog(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	defer l.Close()

	entries, err := l.Load("never-written")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(entries))
	}
}

func TestLoadSkipsTornLine(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLog(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Append(ctx, "assets", "first", testPayload{Name: "x"}, "", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// simulate a torn write on crash
	f, err := os.OpenFile(filepath.Join(dir, "assets.log"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"ts":"2024-01-01T0`); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	entries, err := l.Load("assets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Command != "first" {
		t.Fatalf("expected the intact entry only, got %+v", entries)
	}
}

func TestAppendObservesContext(t *testing.T) {
	l, err := NewFileLog(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Append(ctx, "assets", "late", testPayload{}, "", ""); err == nil {
		t.Fatal("expected error for canceled context")
	}

	entries, err := l.Load("assets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("canceled append must not be persisted, got %d entries", len(entries))
	}
}
