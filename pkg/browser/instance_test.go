package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

func newTestInstance(t *testing.T, cfg InstanceConfig) (*Instance, *fakeProcess) {
	t.Helper()
	if cfg.Kind == "" {
		cfg.Kind = engine.Chromium
	}
	inst := NewInstance(cfg, metrics.NewTestMetrics())
	proc := newFakeProcess()
	require.NoError(t, inst.Initialize(proc))
	return inst, proc
}

func TestInstanceInitialize(t *testing.T) {
	cfg := InstanceConfig{
		Kind:           engine.Chromium,
		TeamID:         "team-a",
		ViewportWidth:  1024,
		ViewportHeight: 768,
		UserAgent:      "brooklyn-test",
	}
	inst := NewInstance(cfg, metrics.NewTestMetrics())
	proc := newFakeProcess()

	assert.False(t, inst.IsActive())
	require.NoError(t, inst.Initialize(proc))
	assert.True(t, inst.IsActive())

	// Context options come from the instance config
	assert.Equal(t, 1024, proc.lastSpec.ViewportWidth)
	assert.Equal(t, 768, proc.lastSpec.ViewportHeight)
	assert.Equal(t, "brooklyn-test", proc.lastSpec.UserAgent)
	assert.True(t, proc.lastSpec.IgnoreTLSErrors)

	assert.Equal(t, "team-a", inst.TeamID())
	assert.NotEmpty(t, inst.ID())
	assert.Equal(t, HealthHealthy, inst.Health())
}

func TestInstanceInitializeContextFailure(t *testing.T) {
	inst := NewInstance(InstanceConfig{Kind: engine.Chromium}, metrics.NewTestMetrics())
	proc := newFakeProcess()
	proc.newContextErr = errors.New("context boom")

	err := inst.Initialize(proc)
	require.Error(t, err)

	// A failed context creation must leave the instance inactive
	assert.False(t, inst.IsActive())
}

func TestInstanceInitializeTwice(t *testing.T) {
	inst, _ := newTestInstance(t, InstanceConfig{})
	assert.Error(t, inst.Initialize(newFakeProcess()))
}

func TestCreatePageRequiresActive(t *testing.T) {
	inst := NewInstance(InstanceConfig{Kind: engine.Chromium}, metrics.NewTestMetrics())

	_, err := inst.CreatePage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")

	inst2, _ := newTestInstance(t, InstanceConfig{})
	inst2.Close(false)
	_, err = inst2.CreatePage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}

func TestCreatePageAppliesTimeout(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{TimeoutMs: 5000})

	_, err := inst.CreatePage()
	require.NoError(t, err)

	page := proc.ctx.pages[0]
	assert.Equal(t, float64(5000), page.timeout)
}

func TestPageObserversUpdateCounters(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	_, err := inst.CreatePage()
	require.NoError(t, err)
	page := proc.ctx.pages[0]

	page.fireRequest()
	page.fireRequest()
	page.firePageError(errors.New("script blew up"))

	m := inst.Metrics()
	assert.Equal(t, int64(2), m.RequestCount)
	assert.Equal(t, int64(1), m.ErrorCount)
	assert.Equal(t, 1, m.PageCount)
}

func TestPageCloseEventDropsTracking(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	_, err := inst.CreatePage()
	require.NoError(t, err)
	page := proc.ctx.pages[0]

	// Driver-side close (e.g. window.close) fires the close observer
	require.NoError(t, page.Close())
	assert.Equal(t, 0, inst.Metrics().PageCount)
}

func TestClosePageIdempotent(t *testing.T) {
	inst, _ := newTestInstance(t, InstanceConfig{})

	pageID, err := inst.CreatePage()
	require.NoError(t, err)
	assert.Equal(t, 1, inst.Metrics().PageCount)

	inst.ClosePage(pageID)
	assert.Equal(t, 0, inst.Metrics().PageCount)

	// Double close and unknown ids are no-ops
	inst.ClosePage(pageID)
	inst.ClosePage("no-such-page")
	assert.Equal(t, 0, inst.Metrics().PageCount)
}

func TestMainPageReturnsMostRecentOpen(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	_, err := inst.CreatePage()
	require.NoError(t, err)
	_, err = inst.CreatePage()
	require.NoError(t, err)

	page, err := inst.MainPage()
	require.NoError(t, err)
	assert.Same(t, proc.ctx.pages[1], page.(*fakePage))

	// When the most recent page closes, fall back to the older one
	require.NoError(t, proc.ctx.pages[1].Close())
	page, err = inst.MainPage()
	require.NoError(t, err)
	assert.Same(t, proc.ctx.pages[0], page.(*fakePage))
}

func TestMainPageCreatesWhenEmpty(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	page, err := inst.MainPage()
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Len(t, proc.ctx.pages, 1)
	assert.Equal(t, 1, inst.Metrics().PageCount)
}

func TestCheckHealthDisconnected(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	proc.setConnected(false)
	assert.False(t, inst.CheckHealth())
	assert.Equal(t, HealthUnhealthy, inst.Health())
}

func TestCheckHealthDegraded(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	_, err := inst.CreatePage()
	require.NoError(t, err)
	page := proc.ctx.pages[0]
	for j := 0; j < degradedErrorThreshold+1; j++ {
		page.firePageError(errors.New("err"))
	}

	assert.True(t, inst.CheckHealth())
	assert.Equal(t, HealthDegraded, inst.Health())
}

func TestCheckHealthHealthy(t *testing.T) {
	inst, _ := newTestInstance(t, InstanceConfig{})
	assert.True(t, inst.CheckHealth())
	assert.Equal(t, HealthHealthy, inst.Health())
}

func TestCheckHealthAbsorbsPanics(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})
	proc.connectPanics = true

	assert.NotPanics(t, func() {
		assert.False(t, inst.CheckHealth())
	})
	assert.Equal(t, HealthUnhealthy, inst.Health())
}

func TestCloseNeverFails(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})

	_, err := inst.CreatePage()
	require.NoError(t, err)
	proc.ctx.pages[0].closeErr = errors.New("page close failed")
	proc.ctx.closeErr = errors.New("context close failed")
	proc.closeErr = errors.New("process close failed")

	result := inst.Close(false)

	// Every step ran despite the failures before it
	assert.Equal(t, 1, result.PageErrors)
	assert.Error(t, result.ContextErr)
	assert.Error(t, result.ProcessErr)
	assert.True(t, proc.ctx.closed)
	assert.True(t, proc.closed)
	assert.False(t, inst.IsActive())
}

func TestCloseForceKillsOnGracefulFailure(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})
	proc.closeErr = errors.New("hung")
	proc.killErr = errors.New("kill also failed")

	result := inst.Close(true)

	assert.True(t, proc.killed)
	assert.Error(t, result.KillErr)
	assert.False(t, inst.IsActive())
}

func TestCloseWithoutForceDoesNotKill(t *testing.T) {
	inst, proc := newTestInstance(t, InstanceConfig{})
	proc.closeErr = errors.New("hung")

	inst.Close(false)
	assert.False(t, proc.killed)
}

func TestIdle(t *testing.T) {
	inst, _ := newTestInstance(t, InstanceConfig{})

	// Fresh instance is not idle yet
	assert.False(t, inst.Idle(time.Hour))

	// Elapsed but pageless: idle once past the threshold
	time.Sleep(15 * time.Millisecond)
	assert.True(t, inst.Idle(10*time.Millisecond))

	// Any open page blocks idleness regardless of elapsed time
	pageID, err := inst.CreatePage()
	require.NoError(t, err)
	time.Sleep(15 * time.Millisecond)
	assert.False(t, inst.Idle(time.Nanosecond))

	// Closing the page makes it eligible again
	inst.ClosePage(pageID)
	time.Sleep(15 * time.Millisecond)
	assert.True(t, inst.Idle(10*time.Millisecond))
}

func TestTouchRefreshesLastUsed(t *testing.T) {
	inst, _ := newTestInstance(t, InstanceConfig{})

	before := inst.LastUsed()
	time.Sleep(5 * time.Millisecond)
	inst.Touch()
	assert.True(t, inst.LastUsed().After(before))
}
