package storage

import (
	"time"

	"wallet-x-search/internal/model"
)

// VerdictRecord is a persisted verdict together with the run that produced it.
type VerdictRecord struct {
	model.Verdict
	RunID     string
	UpdatedAt time.Time
}

// Checkpoint captures progress of a run over one input set.
type Checkpoint struct {
	Key       string         `json:"key"`
	InputHash string         `json:"inputHash"`
	Processed []string       `json:"processedWallets"`
	Stats     model.RunStats `json:"stats"`
	UpdatedAt time.Time      `json:"lastUpdated"`
}

// ProcessedSet indexes the processed wallets for membership checks.
func (c Checkpoint) ProcessedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Processed))
	for _, w := range c.Processed {
		set[w] = struct{}{}
	}
	return set
}
