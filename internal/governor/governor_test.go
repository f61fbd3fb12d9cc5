package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLimitsIncreaseWithTier(t *testing.T) {
	order := []Tier{TierAnonymous, TierFree, TierStarter, TierGrowth, TierEnterprise}
	for _, endpoint := range []Endpoint{EndpointAnalyze, EndpointCompare, EndpointExportDaily} {
		prev := 0
		for _, tier := range order {
			limit := limits[endpoint][tier]
			assert.Greater(t, limit, prev, "expected %s limit to increase at tier %s", endpoint, tier)
			prev = limit
		}
	}
}

func TestWindowForEndpoints(t *testing.T) {
	assert.Equal(t, time.Hour, windowFor[EndpointAnalyze])
	assert.Equal(t, time.Hour, windowFor[EndpointCompare])
	assert.Equal(t, 24*time.Hour, windowFor[EndpointExportDaily])
}

func TestFallbackAllowBoundsBurstThenRejects(t *testing.T) {
	g := &Governor{fallback: make(map[string]*rate.Limiter)}

	var lastErr error
	for i := 0; i < 4; i++ {
		lastErr = g.fallbackAllow("burst-key", 3, time.Minute)
	}
	assert.Error(t, lastErr, "fourth call should exceed a burst of 3")
}

func TestFallbackAllowReusesLimiterPerKey(t *testing.T) {
	g := &Governor{fallback: make(map[string]*rate.Limiter)}

	require.NoError(t, g.fallbackAllow("key-a", 10, time.Minute))
	assert.Len(t, g.fallback, 1)

	require.NoError(t, g.fallbackAllow("key-a", 10, time.Minute))
	assert.Len(t, g.fallback, 1, "same key should reuse the limiter instead of creating a new one")
}
