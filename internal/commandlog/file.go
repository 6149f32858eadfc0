// Package commandlog implements the append-only command log as JSON lines
// on disk, one file per logical log. State is reconstructed on startup by
// replaying a log in append order.
package commandlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/ports"
)

type FileLog struct {
	dir   string
	log   *zap.Logger
	mu    sync.Mutex
	files map[string]*os.File
}

func NewFileLog(dir string, log *zap.Logger) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create command log directory: %w", err)
	}
	return &FileLog{
		dir:   dir,
		log:   log,
		files: make(map[string]*os.File),
	}, nil
}

func (l *FileLog) path(logName string) string {
	return filepath.Join(l.dir, logName+".log")
}

// Append writes one command as a JSON line and syncs it to disk before
// returning. The context is checked before the write commits; an entry is
// never partially visible to Load because lines are written in one call.
func (l *FileLog) Append(ctx context.Context, logName, command string, payload any, trackingID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}
	entry := ports.LoggedCommand{
		Timestamp:  time.Now().UTC(),
		Command:    command,
		Payload:    raw,
		TrackingID: trackingID,
		UserID:     userID,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal command entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	f, err := l.file(logName)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s log: %w", logName, err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	telemetry.CommandLogAppendLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Load replays a whole log. A missing file is an empty log, not an error.
// A trailing malformed line (torn write on crash) is skipped with a warning.
func (l *FileLog) Load(logName string) ([]ports.LoggedCommand, error) {
	f, err := os.Open(l.path(logName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s log: %w", logName, err)
	}
	defer f.Close()

	var out []ports.LoggedCommand
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ports.LoggedCommand
		if err := json.Unmarshal(line, &entry); err != nil {
			l.log.Warn("Skipping malformed command log line",
				zap.String("log", logName),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s log: %w", logName, err)
	}
	return out, nil
}

func (l *FileLog) file(logName string) (*os.File, error) {
	if f, ok := l.files[logName]; ok {
		return f, nil
	}
	f, err := os.OpenFile(l.path(logName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s log for append: %w", logName, err)
	}
	l.files[logName] = f
	return f, nil
}

// Close closes all open log files.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for name, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.files, name)
	}
	return firstErr
}
