package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSecondRequest(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterKeepsHostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterDisabledByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "https://example.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(ctx, "https://example.com"))
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://slow.example"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "www.hltv.org", hostOf("https://www.hltv.org/results"))
	assert.Equal(t, "unknown", hostOf("::bad"))
	assert.Equal(t, "unknown", hostOf(""))
}
