package io

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/williampepple1/scrapebot/pkg/models"
)

// Buffer accumulates results for the single remote delivery of a run
type Buffer struct {
	mu      sync.Mutex
	results []models.ExtractionResult
}

// Append adds a result to the buffer
func (b *Buffer) Append(r models.ExtractionResult) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()
}

// Len returns the number of buffered results
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Results returns a copy of the buffered results
func (b *Buffer) Results() []models.ExtractionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.ExtractionResult(nil), b.results...)
}

// JSON serializes the whole buffer as one array
func (b *Buffer) JSON() ([]byte, error) {
	results := b.Results()
	if results == nil {
		results = []models.ExtractionResult{}
	}
	return json.Marshal(results)
}

// ResultSink writes results to the JSON-lines result file and, when
// delivery is enabled, to the run's buffer
type ResultSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buffer *Buffer
}

// NewResultSink creates a sink appending to path. buffer may be nil when
// remote delivery is disabled. The file is created on the first capture.
func NewResultSink(path string, buffer *Buffer) *ResultSink {
	return &ResultSink{
		path:   path,
		buffer: buffer,
	}
}

// Capture appends one result line and copies the result to the buffer
func (s *ResultSink) Capture(r models.ExtractionResult) error {
	if r.Items == nil {
		r.Items = []models.Record{}
	}
	r.Timestamp = r.Timestamp.UTC()

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result of step %d: %w", r.StepIndex, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return fmt.Errorf("creating result directory: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening result file: %w", err)
		}
		s.file = f
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}

	if s.buffer != nil {
		s.buffer.Append(r)
	}
	return nil
}

// Close releases the result file
func (s *ResultSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
