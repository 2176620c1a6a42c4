package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wallet-x-search/internal/model"
)

// Sink receives every finished verdict.
type Sink interface {
	Write(v model.Verdict) error
}

// ResultRecord is one line of the JSON-lines output.
type ResultRecord struct {
	Wallet        string  `json:"wallet"`
	PostExists    bool    `json:"postExists"`
	TwitterHandle *string `json:"twitterHandle"`
	Confidence    string  `json:"confidence"`
	RawResponse   string  `json:"rawResponse,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// NewResultRecord converts a verdict, keeping the raw text only when it is
// shorter than rawLimit.
func NewResultRecord(v model.Verdict, rawLimit int) ResultRecord {
	rec := ResultRecord{
		Wallet:     v.Wallet,
		PostExists: v.PostExists,
		Confidence: v.Confidence.String(),
		Error:      v.Error,
	}
	if v.HasHandle() {
		handle := v.Handle
		rec.TwitterHandle = &handle
	}
	if v.RawText != "" && len(v.RawText) < rawLimit {
		rec.RawResponse = v.RawText
	}
	return rec
}

// JSONLSink appends one JSON object per verdict to a file.
type JSONLSink struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	rawLimit int
}

// NewJSONLSink opens path for appending.
func NewJSONLSink(path string, rawLimit int) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONLSink{file: file, enc: json.NewEncoder(file), rawLimit: rawLimit}, nil
}

// Write implements Sink.
func (s *JSONLSink) Write(v model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(NewResultRecord(v, s.rawLimit)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var _ Sink = (*JSONLSink)(nil)
