package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_NoLimitConfigured(t *testing.T) {
	l := New()

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow(APIFinnhub))
	}
	require.NoError(t, l.Wait(context.Background(), APIFinnhub))
}

func TestLimiter_NilAllowsEverything(t *testing.T) {
	var l *Limiter

	require.True(t, l.Allow(APIAlphaVantage))
	require.NoError(t, l.Wait(context.Background(), APIAlphaVantage))
}

func TestLimiter_SetPerMinute(t *testing.T) {
	l := New()
	l.SetPerMinute(APIAlphaVantage, 5, 2)

	// burst of two, then empty
	require.True(t, l.Allow(APIAlphaVantage))
	require.True(t, l.Allow(APIAlphaVantage))
	require.False(t, l.Allow(APIAlphaVantage))

	// other APIs are unaffected
	require.True(t, l.Allow(APIFinnhub))
}

func TestLimiter_RemoveLimit(t *testing.T) {
	l := New()
	l.SetPerMinute(APIFinnhub, 1, 1)
	require.True(t, l.Allow(APIFinnhub))
	require.False(t, l.Allow(APIFinnhub))

	l.SetPerMinute(APIFinnhub, 0, 0)
	require.True(t, l.Allow(APIFinnhub))
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New()
	l.SetPerMinute(APIFinnhub, 1, 1)
	require.True(t, l.Allow(APIFinnhub))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.Error(t, l.Wait(ctx, APIFinnhub))
}
