package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatsRecord(t *testing.T) {
	var s RunStats
	s.Record(NoPostVerdict("w1", "false", ""))
	s.Record(AttributedVerdict("w2", "alice", ConfidenceHigh, "raw"))
	s.Record(UnattributedVerdict("w3", ConfidenceLow, "raw", ""))
	s.Record(FailedVerdict("w4", "boom"))

	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 2, s.PostsFound)
	assert.Equal(t, 1, s.HandlesFound)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, "25", s.HitRate().String())
}

func TestRunStatsHitRateRounds(t *testing.T) {
	s := RunStats{Processed: 3, HandlesFound: 1}
	assert.Equal(t, "33.3", s.HitRate().String())
	assert.True(t, RunStats{}.HitRate().IsZero())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "66.7", Percent(2, 3).String())
	assert.Equal(t, "100", Percent(5, 5).String())
	assert.True(t, Percent(3, 0).IsZero())
}
