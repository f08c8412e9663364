package arbiter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []status.Status
	ok     bool
}

func (f *fakePusher) Push(_ context.Context, target status.Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, target)
	return f.ok
}

func (f *fakePusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakePusher) last() status.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []bool
}

func (f *fakeRecorder) Record(_ context.Context, _ status.Status, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, ok)
}

func newTestArbiter(t *testing.T, cfg Config) (*Arbiter, *fakePusher) {
	t.Helper()
	a := New(cfg, testLogger())
	p := &fakePusher{ok: true}
	a.BindPusher(p)
	t.Cleanup(a.Shutdown)
	return a, p
}

// at pins the arbiter's clock to base plus an offset.
func at(a *Arbiter, base time.Time, offset time.Duration) {
	a.now = func() time.Time { return base.Add(offset) }
}

func TestOverrideWinsUntilExpiry(t *testing.T) {
	a, _ := newTestArbiter(t, Config{})
	base := time.Now()
	at(a, base, 0)

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	sched.CreatedAt = base
	a.OnScheduleUpdate(context.Background(), sched)

	over := status.NewStandard(status.MainBusy, status.ExtNone, status.OriginOverride).
		WithTTL(100 * time.Second)
	over.CreatedAt = base
	a.OnOverrideRequest(context.Background(), over)

	at(a, base, 50*time.Second)
	active := a.ComputeActive()
	assert.Equal(t, status.OriginOverride, active.Origin)
	assert.Equal(t, status.MainBusy, active.MainCode)

	at(a, base, 150*time.Second)
	active = a.ComputeActive()
	assert.Equal(t, status.OriginSchedule, active.Origin)
	assert.Equal(t, status.MainAway, active.MainCode)

	snap := a.Snapshot()
	assert.Nil(t, snap.Override, "expired override layer should be cleared")
	require.NotNil(t, snap.Schedule)
}

func TestScheduleUpdateKeepsOverride(t *testing.T) {
	a, _ := newTestArbiter(t, Config{})

	over := status.NewStandard(status.MainBusy, status.ExtNone, status.OriginOverride)
	a.OnOverrideRequest(context.Background(), over)

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	a.OnScheduleUpdate(context.Background(), sched)

	active := a.ComputeActive()
	assert.Equal(t, status.OriginOverride, active.Origin)
}

func TestDefaultWhenAllLayersEmpty(t *testing.T) {
	a, _ := newTestArbiter(t, Config{})

	active := a.ComputeActive()
	assert.Equal(t, status.KindStandard, active.Kind)
	assert.Equal(t, status.MainOnline, active.MainCode)
	assert.Equal(t, status.ExtNone, active.ExtCode)
}

func TestSyncDebounced(t *testing.T) {
	a, p := newTestArbiter(t, Config{})

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	a.OnScheduleUpdate(context.Background(), sched)
	require.Equal(t, 1, p.count())

	// Same payload again: no second push.
	a.SyncIfChanged(context.Background(), false)
	a.OnScheduleUpdate(context.Background(), sched)
	assert.Equal(t, 1, p.count())

	// Forcing re-applies even an unchanged payload.
	a.SyncIfChanged(context.Background(), true)
	assert.Equal(t, 2, p.count())
}

func TestSyncFailureRetriesSameTransition(t *testing.T) {
	a, p := newTestArbiter(t, Config{})
	p.ok = false

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	a.OnScheduleUpdate(context.Background(), sched)
	require.Equal(t, 1, p.count())

	// The failed push must not count as confirmed: the next cycle pushes
	// the identical payload again.
	p.ok = true
	a.SyncIfChanged(context.Background(), false)
	assert.Equal(t, 2, p.count())

	a.SyncIfChanged(context.Background(), false)
	assert.Equal(t, 2, p.count())
}

func TestRecorderSeesOutcomes(t *testing.T) {
	a, p := newTestArbiter(t, Config{})
	rec := &fakeRecorder{}
	a.BindRecorder(rec)

	p.ok = false
	a.OnScheduleUpdate(context.Background(), status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule))
	p.ok = true
	a.SyncIfChanged(context.Background(), false)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.results, 2)
	assert.False(t, rec.results[0])
	assert.True(t, rec.results[1])
}

func TestInteractionWakeUsesPreset(t *testing.T) {
	presets := preset.New([]preset.Standard{
		{Name: "我看看谁在找我", MainCode: status.MainOnline, ExtCode: 1060},
	}, nil, nil)
	a, p := newTestArbiter(t, Config{Presets: presets, WakePreset: "我看看谁在找我"})

	a.OnInteractionEvent(context.Background())

	require.Equal(t, 1, p.count())
	pushed := p.last()
	assert.Equal(t, status.OriginInteraction, pushed.Origin)
	assert.Equal(t, 1060, pushed.ExtCode)
	assert.False(t, pushed.Silent)
	assert.Equal(t, status.InteractionTTL, pushed.TTL)
}

func TestInteractionWakeFallback(t *testing.T) {
	a, p := newTestArbiter(t, Config{WakePreset: "missing"})

	a.OnInteractionEvent(context.Background())

	require.Equal(t, 1, p.count())
	assert.Equal(t, status.ExtFallbackWake, p.last().ExtCode)
}

func TestSilentStateBlocksInteraction(t *testing.T) {
	a, p := newTestArbiter(t, Config{})

	over := status.NewStandard(status.MainDoNotDisturb, status.ExtNone, status.OriginOverride).
		WithSilent(true)
	a.OnOverrideRequest(context.Background(), over)
	require.Equal(t, 1, p.count())

	a.OnInteractionEvent(context.Background())

	assert.Equal(t, 1, p.count(), "silent state must suppress the wake push")
	assert.Nil(t, a.Snapshot().Interaction)
}

func TestOverrideClearsInteraction(t *testing.T) {
	a, _ := newTestArbiter(t, Config{})

	a.OnInteractionEvent(context.Background())
	require.NotNil(t, a.Snapshot().Interaction)

	over := status.NewStandard(status.MainBusy, status.ExtNone, status.OriginOverride)
	a.OnOverrideRequest(context.Background(), over)

	snap := a.Snapshot()
	assert.Nil(t, snap.Interaction)
	require.NotNil(t, snap.Override)
}

func TestOverrideClearReturnsToSchedule(t *testing.T) {
	a, p := newTestArbiter(t, Config{})

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	a.OnScheduleUpdate(context.Background(), sched)
	a.OnOverrideRequest(context.Background(), status.NewStandard(status.MainBusy, status.ExtNone, status.OriginOverride))
	require.Equal(t, 2, p.count())

	a.OnOverrideClear(context.Background())

	assert.Equal(t, 3, p.count())
	assert.Equal(t, status.MainAway, p.last().MainCode)
}

func TestInteractionAutoRevert(t *testing.T) {
	a, p := newTestArbiter(t, Config{InteractionTTL: 30 * time.Millisecond})

	sched := status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule)
	a.OnScheduleUpdate(context.Background(), sched)
	a.OnInteractionEvent(context.Background())
	require.Equal(t, 2, p.count())

	assert.Eventually(t, func() bool {
		return p.count() == 3 && a.Snapshot().Interaction == nil
	}, time.Second, 5*time.Millisecond, "wake state should auto-revert after its TTL")
	assert.Equal(t, status.MainAway, p.last().MainCode)
}

func TestStaleRevertTimerIsIgnored(t *testing.T) {
	a, p := newTestArbiter(t, Config{InteractionTTL: 20 * time.Millisecond})

	a.OnInteractionEvent(context.Background())
	// Supersede the pending timer before it fires.
	over := status.NewStandard(status.MainBusy, status.ExtNone, status.OriginOverride)
	a.OnOverrideRequest(context.Background(), over)

	time.Sleep(60 * time.Millisecond)

	active := a.ComputeActive()
	assert.Equal(t, status.OriginOverride, active.Origin)
	assert.Equal(t, 2, p.count())
}

func TestSyncWithoutPusherIsSafe(t *testing.T) {
	a := New(Config{}, testLogger())
	t.Cleanup(a.Shutdown)

	// Must not panic, and must not record anything as confirmed.
	a.OnScheduleUpdate(context.Background(), status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule))
	assert.Nil(t, a.Snapshot().LastConfirmed)
}
