package io

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// timestampLayout is the UTC prefix of every session log line
const timestampLayout = "2006-01-02 15:04:05.000"

// SessionLog is the append-only, human-readable trail of a job. Lines from
// every run of the same uid accumulate in one file.
type SessionLog struct {
	mu   sync.Mutex
	file *os.File
	echo io.Writer
	now  func() time.Time
}

// OpenSessionLog opens (or creates) path for appending. Every line is also
// written to echo when it is not nil.
func OpenSessionLog(path string, echo io.Writer) (*SessionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	return &SessionLog{file: file, echo: echo, now: time.Now}, nil
}

// SetClock replaces the time source. Tests only.
func (l *SessionLog) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Record appends one line.
func (l *SessionLog) Record(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("session log is closed")
	}

	line := l.now().UTC().Format(timestampLayout) + " " + text + "\n"
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("writing session log: %w", err)
	}
	if l.echo != nil {
		// the console copy is best effort
		_, _ = io.WriteString(l.echo, line)
	}
	return nil
}

// Recordf formats according to a format specifier and appends the line.
func (l *SessionLog) Recordf(format string, args ...any) error {
	return l.Record(fmt.Sprintf(format, args...))
}

// Close releases the file. It is safe to call more than once.
func (l *SessionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
