package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestVerdictCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(VerdictsTotal.WithLabelValues("High", "false"))
	VerdictsTotal.WithLabelValues("High", "false").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(VerdictsTotal.WithLabelValues("High", "false")))
}

func TestRateLimitRejectionsCounter(t *testing.T) {
	before := testutil.ToFloat64(RateLimitRejections)
	RateLimitRejections.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RateLimitRejections))
}
