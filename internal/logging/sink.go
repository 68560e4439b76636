package logging

import (
	"context"
	"time"
)

// AttemptRecord is one provider call made by the dispatcher or the validator.
type AttemptRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	Item        int       `json:"item"`
	Attempt     int       `json:"attempt"`
	Credential  string    `json:"credential"` // fingerprint, never the raw key
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Outcome     string    `json:"outcome"`
	LatencyMs   int64     `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	ResultChars int       `json:"result_chars,omitempty"`
}

// Sink receives attempt records.
type Sink interface {
	Enqueue(rec *AttemptRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *AttemptRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
