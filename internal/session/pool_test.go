package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSweep(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()

	idle := newHarness(t)
	require.NoError(t, idle.ctl.Start(ctx))
	assert.Nil(t, pool.Replace("idle", idle.ctl))

	done := newHarness(t)
	require.NoError(t, done.ctl.Start(ctx))
	require.NoError(t, done.ctl.Advance(ctx, PhaseWelcome))
	require.NoError(t, done.ctl.SubmitID(ctx, "bogus"))
	pool.Replace("done", done.ctl)

	fresh := newHarness(t)
	require.NoError(t, fresh.ctl.Start(ctx))
	pool.Replace("fresh", fresh.ctl)

	// Every harness clock starts at the same instant; only "fresh" counts as recent
	now := fresh.clock.Now().Add(10 * time.Minute)
	fresh.clock.Advance(10 * time.Minute)
	require.NoError(t, fresh.ctl.Advance(ctx, PhaseWelcome))

	assert.Equal(t, 2, pool.Sweep(ctx, now, 5*time.Minute))
	assert.Equal(t, 1, pool.Len())
	assert.Nil(t, pool.Get("idle"))
	assert.Nil(t, pool.Get("done"))
	assert.Same(t, fresh.ctl, pool.Get("fresh"))

	assert.Equal(t, ReasonAbandoned, idle.ctl.State().Reason)
	assert.Equal(t, ReasonInvalidID, done.ctl.State().Reason)
}

func TestPoolReplaceAndCloseAll(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()

	first := newHarness(t)
	second := newHarness(t)
	require.NoError(t, first.ctl.Start(ctx))
	require.NoError(t, second.ctl.Start(ctx))

	pool.Replace("chat", first.ctl)
	assert.Same(t, first.ctl, pool.Replace("chat", second.ctl))

	pool.CloseAll(ctx)
	assert.Zero(t, pool.Len())
	assert.Equal(t, StatusAborted, second.ctl.State().Status)
}
