package model

import "github.com/shopspring/decimal"

// RunStats are the running counters of a search run. They are persisted with
// the checkpoint so a resumed run continues the totals.
type RunStats struct {
	Total            int `json:"total"`
	Processed        int `json:"processed"`
	PostsFound       int `json:"postsFound"`
	HandlesFound     int `json:"handlesFound"`
	Errors           int `json:"errors"`
	SkippedFromCache int `json:"skippedFromCache"`
}

// Record folds one verdict into the counters.
func (s *RunStats) Record(v Verdict) {
	s.Processed++
	if v.PostExists {
		s.PostsFound++
	}
	if v.HasHandle() {
		s.HandlesFound++
	}
	if v.Degraded() {
		s.Errors++
	}
}

// HitRate is the share of processed wallets with an attributed handle, as a
// percentage rounded to one decimal place.
func (s RunStats) HitRate() decimal.Decimal {
	return Percent(s.HandlesFound, s.Processed)
}

// Percent returns part/whole as a percentage rounded to one decimal place,
// or zero when whole is zero.
func Percent(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).
		Div(decimal.NewFromInt(int64(whole))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}
