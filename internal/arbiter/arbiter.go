// Package arbiter resolves which of three competing desired-presence layers
// is pushed to the backend. The layers are, highest priority first:
//
//	Interaction: short-lived wake state set when a message arrives
//	Override:    assistant-issued state with a medium TTL
//	Schedule:    the daily schedule's slot, normally unbounded
//
// Each layer expires independently; the active value is a pure read over all
// three. The backend only hears about genuine payload changes: a sync is
// debounced against the last value the backend confirmed.
package arbiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/status"
	"github.com/ashita-ai/kehai/internal/telemetry"
)

// Pusher sends an arbitrated value to the backend. The adapter implements it;
// tests swap in fakes.
type Pusher interface {
	Push(ctx context.Context, target status.Status) bool
}

// Recorder receives the outcome of every attempted push, for the audit trail.
type Recorder interface {
	Record(ctx context.Context, target status.Status, ok bool)
}

// Config holds the arbiter's tunables.
type Config struct {
	// Presets resolves the wake preset name. Never nil.
	Presets *preset.Set
	// WakePreset names the preset applied on an interaction event. An empty
	// or unknown name falls back to a hardcoded online value.
	WakePreset string
	// InteractionTTL bounds the interaction layer's lifetime.
	InteractionTTL time.Duration
	// OverrideTTL is applied to override requests that carry no TTL.
	OverrideTTL time.Duration
}

// Arbiter holds the three layers and drives sync. Safe for concurrent use.
type Arbiter struct {
	cfg    Config
	logger *slog.Logger

	// mu guards the layer slots, the last-confirmed value, and the revert
	// generation. It is never held across a backend call.
	mu          sync.Mutex
	schedule    *status.Status
	override    *status.Status
	interaction *status.Status
	confirmed   *status.Status
	revertGen   uint64
	revertTimer *time.Timer

	// syncMu serializes the decide→compare→push→record sequence so two
	// concurrent triggers cannot double-push the same transition.
	syncMu sync.Mutex

	pusherMu sync.RWMutex
	pusher   Pusher
	recorder Recorder

	now func() time.Time

	syncs metric.Int64Counter
}

// New creates an Arbiter. Bind a Pusher before the first sync; until then
// syncs are skipped with a warning.
func New(cfg Config, logger *slog.Logger) *Arbiter {
	if cfg.Presets == nil {
		cfg.Presets = preset.New(nil, nil, nil)
	}
	if cfg.InteractionTTL <= 0 {
		cfg.InteractionTTL = status.InteractionTTL
	}
	if cfg.OverrideTTL <= 0 {
		cfg.OverrideTTL = status.OverrideTTL
	}

	a := &Arbiter{
		cfg:    cfg,
		logger: logger.With("component", "arbiter"),
		now:    time.Now,
	}
	a.syncs, _ = telemetry.Meter("kehai/arbiter").Int64Counter("kehai.sync.total",
		metric.WithDescription("Sync evaluations by outcome"))
	return a
}

// BindPusher sets (or replaces) the backend binding.
func (a *Arbiter) BindPusher(p Pusher) {
	a.pusherMu.Lock()
	defer a.pusherMu.Unlock()
	a.pusher = p
}

// BindRecorder sets the push-history sink.
func (a *Arbiter) BindRecorder(r Recorder) {
	a.pusherMu.Lock()
	defer a.pusherMu.Unlock()
	a.recorder = r
}

// Shutdown cancels the revert timer. Any timer that fires afterwards sees a
// stale generation and does nothing.
func (a *Arbiter) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTimerLocked()
}

// defaultActive is the value used when every layer is empty or expired.
func defaultActive() status.Status {
	return status.NewStandard(status.MainOnline, status.ExtNone, status.OriginSchedule)
}

// computeActiveLocked evaluates the layers top-down, lazily clearing expired
// ones. Callers hold mu.
func (a *Arbiter) computeActiveLocked() status.Status {
	now := a.now()

	if a.interaction != nil {
		if !a.interaction.ExpiredAt(now) {
			return *a.interaction
		}
		a.interaction = nil
	}

	if a.override != nil {
		if !a.override.ExpiredAt(now) {
			return *a.override
		}
		a.logger.Info("override expired, releasing control", "status", a.override.String())
		a.override = nil
	}

	if a.schedule != nil {
		return *a.schedule
	}

	return defaultActive()
}

// ComputeActive returns the currently active value. Idempotent: its only side
// effect is clearing layers that have already expired, so it is safe to call
// at any frequency.
func (a *Arbiter) ComputeActive() status.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.computeActiveLocked()
}

// Layers is a point-in-time snapshot of the arbitration state, for the
// inspection surfaces. Nil means the layer is empty.
type Layers struct {
	Schedule      *status.Status `json:"schedule"`
	Override      *status.Status `json:"override"`
	Interaction   *status.Status `json:"interaction"`
	LastConfirmed *status.Status `json:"last_confirmed"`
}

// Snapshot returns copies of all layers and the last-confirmed value.
func (a *Arbiter) Snapshot() Layers {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Layers{
		Schedule:      copyStatus(a.schedule),
		Override:      copyStatus(a.override),
		Interaction:   copyStatus(a.interaction),
		LastConfirmed: copyStatus(a.confirmed),
	}
}

func copyStatus(s *status.Status) *status.Status {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// OnScheduleUpdate sets the schedule layer and triggers a sync. It never
// touches the override layer: an unexpired override keeps winning at read
// time until its TTL runs out.
func (a *Arbiter) OnScheduleUpdate(ctx context.Context, st status.Status) {
	st.Origin = status.OriginSchedule

	a.mu.Lock()
	a.schedule = &st
	a.mu.Unlock()

	a.SyncIfChanged(ctx, false)
}

// OnOverrideRequest sets the override layer, clears any interaction state
// (an explicit override outranks a lingering wake response), and syncs.
// Requests without a TTL get the configured override lifetime.
func (a *Arbiter) OnOverrideRequest(ctx context.Context, st status.Status) {
	st.Origin = status.OriginOverride
	if st.TTL <= 0 {
		st = st.WithTTL(a.cfg.OverrideTTL)
	}

	a.mu.Lock()
	a.override = &st
	a.interaction = nil
	a.cancelTimerLocked()
	a.mu.Unlock()

	a.logger.Info("override set", "status", st.String(), "ttl", st.TTL)
	a.SyncIfChanged(ctx, false)
}

// OnOverrideClear drops the override layer and syncs, handing control back
// to the schedule.
func (a *Arbiter) OnOverrideClear(ctx context.Context) {
	a.mu.Lock()
	cleared := a.override != nil
	a.override = nil
	a.mu.Unlock()

	if cleared {
		a.logger.Info("override cleared")
	}
	a.SyncIfChanged(ctx, false)
}

// OnInteractionEvent responds to an inbound message: a short-lived wake state
// is put on the interaction layer, with an auto-revert timer. A silent active
// state suppresses the whole thing: an agent marked do-not-disturb is not
// interrupted.
func (a *Arbiter) OnInteractionEvent(ctx context.Context) {
	a.mu.Lock()

	if active := a.computeActiveLocked(); active.Silent {
		a.mu.Unlock()
		a.logger.Debug("interaction ignored: active state is silent", "status", active.String())
		return
	}

	wake := a.wakeStatus()
	a.interaction = &wake
	a.cancelTimerLocked()
	a.revertGen++
	gen := a.revertGen
	a.revertTimer = time.AfterFunc(wake.TTL, func() { a.revertInteraction(gen) })
	a.mu.Unlock()

	a.logger.Debug("interaction wake", "status", wake.String(), "ttl", wake.TTL)
	a.SyncIfChanged(ctx, false)
}

// wakeStatus builds the interaction-layer value from the configured preset,
// falling back to a hardcoded online value when the preset is missing. A
// standard wake preset is never silent: the whole point is to look awake.
func (a *Arbiter) wakeStatus() status.Status {
	if p, ok := a.cfg.Presets.Lookup(a.cfg.WakePreset); ok {
		wake := status.FromPreset(p, status.OriginInteraction).WithTTL(a.cfg.InteractionTTL)
		if wake.Kind == status.KindStandard {
			wake = wake.WithSilent(false)
		}
		return wake
	}
	if a.cfg.WakePreset != "" {
		a.logger.Warn("wake preset not found, using fallback", "preset", a.cfg.WakePreset)
	}
	return status.NewStandard(status.MainOnline, status.ExtFallbackWake, status.OriginInteraction).
		WithTTL(a.cfg.InteractionTTL)
}

// revertInteraction fires when the wake TTL elapses. The generation check
// guards against a stale timer: a newer interaction (or an override) has
// already superseded this one, and cancellation alone is not instantaneous.
func (a *Arbiter) revertInteraction(gen uint64) {
	a.mu.Lock()
	if gen != a.revertGen {
		a.mu.Unlock()
		return
	}
	a.interaction = nil
	a.revertTimer = nil
	a.mu.Unlock()

	a.logger.Debug("interaction expired, reverting to background state")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	a.SyncIfChanged(ctx, false)
}

// cancelTimerLocked stops the active revert timer and bumps the generation
// so an already-fired callback becomes a no-op. Callers hold mu.
func (a *Arbiter) cancelTimerLocked() {
	a.revertGen++
	if a.revertTimer != nil {
		a.revertTimer.Stop()
		a.revertTimer = nil
	}
}

// SyncIfChanged computes the active value and pushes it when it differs from
// the last confirmed push (or force is true). On failure the last-confirmed
// value is left untouched so the next cycle retries the same transition.
func (a *Arbiter) SyncIfChanged(ctx context.Context, force bool) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	a.pusherMu.RLock()
	pusher := a.pusher
	recorder := a.recorder
	a.pusherMu.RUnlock()

	if pusher == nil {
		a.logger.Warn("sync skipped: no backend bound")
		return
	}

	a.mu.Lock()
	target := a.computeActiveLocked()
	confirmed := copyStatus(a.confirmed)
	a.mu.Unlock()

	if !force && confirmed != nil && target.PayloadEquals(*confirmed) {
		a.syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unchanged")))
		return
	}

	from := "none"
	if confirmed != nil {
		from = confirmed.String()
	}
	a.logger.Info("state transition", "from", from, "to", target.String(), "forced", force)

	ok := pusher.Push(ctx, target)
	if recorder != nil {
		recorder.Record(ctx, target, ok)
	}

	if ok {
		a.mu.Lock()
		a.confirmed = &target
		a.mu.Unlock()
		a.syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "pushed")))
		return
	}

	a.syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	a.logger.Warn("sync failed, keeping previous confirmed state for retry", "target", target.String())
}
