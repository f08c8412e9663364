package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/status"
	"github.com/ashita-ai/kehai/internal/telemetry"
)

// Applier receives the resolved schedule-layer candidate once per evaluation.
// The arbiter implements it.
type Applier interface {
	OnScheduleUpdate(ctx context.Context, st status.Status)
}

// Config holds the engine's resolution settings.
type Config struct {
	// Presets resolves slot references and the sleep fallback. Never nil.
	Presets *preset.Set
	// SleepPresets is tried in order for the deep-night gap fallback.
	SleepPresets []string
}

// Engine guarantees a schedule exists for today and resolves the slot
// matching the current minute. Missing data never blocks the evaluation
// loop: generation runs in the background while resolution falls back to
// time-of-day defaults.
type Engine struct {
	cfg     Config
	store   *Store
	gen     Generator
	applier Applier
	logger  *slog.Logger

	mu         sync.Mutex
	cachedDate string
	slots      []Slot
	inflight   map[string]bool

	started atomic.Bool
	now     func() time.Time

	refreshes metric.Int64Counter
}

// NewEngine wires the engine. gen may be nil, in which case absent schedules
// are never generated and resolution always runs on fallbacks.
func NewEngine(store *Store, gen Generator, applier Applier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Presets == nil {
		cfg.Presets = preset.New(nil, nil, nil)
	}
	e := &Engine{
		cfg:      cfg,
		store:    store,
		gen:      gen,
		applier:  applier,
		logger:   logger.With("component", "schedule"),
		inflight: make(map[string]bool),
		now:      time.Now,
	}
	e.refreshes, _ = telemetry.Meter("kehai/schedule").Int64Counter("kehai.schedule.refresh.total",
		metric.WithDescription("Schedule refresh attempts by outcome"))
	return e
}

// Run drives the evaluation loop until ctx is canceled: once per wall-clock
// minute, aligned to the minute boundary, it ensures today's schedule and
// applies the current slot.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("schedule: engine already running")
	}
	e.logger.Info("schedule engine started")

	for {
		e.tick(ctx)

		next := e.now().Truncate(time.Minute).Add(time.Minute)
		select {
		case <-ctx.Done():
			e.logger.Info("schedule engine stopped")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
	}
}

// tick is one evaluation cycle. A panic in resolution must not kill the
// loop, so it is contained here.
func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation cycle panicked", "panic", r)
		}
	}()

	now := e.now()
	e.ensureFresh(ctx, now)
	e.Apply(ctx, now)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ensureFresh makes sure a schedule for now's date is cached, starting at
// most one background refresh per date. It never blocks on load or
// generation.
func (e *Engine) ensureFresh(ctx context.Context, now time.Time) {
	date := dateKey(now)

	e.mu.Lock()
	if e.cachedDate == date && len(e.slots) > 0 {
		e.mu.Unlock()
		return
	}
	if e.inflight[date] {
		e.mu.Unlock()
		return
	}
	e.inflight[date] = true
	e.mu.Unlock()

	// The refresh outlives the caller: an admin request that triggered it
	// ends as soon as its handler returns, and generation must not be
	// canceled with it.
	go e.refresh(context.WithoutCancel(ctx), now)
}

// refresh loads or generates the schedule for now's date and caches it.
// Failure leaves no cache; the next tick retries.
func (e *Engine) refresh(ctx context.Context, now time.Time) {
	date := dateKey(now)
	defer func() {
		e.mu.Lock()
		delete(e.inflight, date)
		e.mu.Unlock()
	}()

	if slots := Sanitize(e.store.Load(now)); len(slots) > 0 {
		e.cache(date, slots)
		e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "loaded")))
		e.logger.Info("schedule loaded from disk", "date", date, "slots", len(slots))
		return
	}

	if e.gen == nil {
		e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "no_generator")))
		return
	}

	e.logger.Info("no schedule for today, generating", "date", date)
	raw, err := e.gen.GenerateDaily(ctx, now)
	if err != nil {
		e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "generate_failed")))
		e.logger.Warn("schedule generation failed, will retry next cycle", "date", date, "error", err)
		return
	}

	slots := Sanitize(raw)
	if len(slots) == 0 {
		e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "empty")))
		e.logger.Warn("generated schedule had no usable slots", "date", date)
		return
	}

	if err := e.store.Save(now, slots); err != nil {
		e.logger.Error("persisting generated schedule failed", "date", date, "error", err)
	}
	e.cache(date, slots)
	e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "generated")))
	e.logger.Info("schedule generated and cached", "date", date, "slots", len(slots))
}

func (e *Engine) cache(date string, slots []Slot) {
	e.mu.Lock()
	e.cachedDate = date
	e.slots = slots
	e.mu.Unlock()
}

// Today returns a copy of the cached slot list, for the inspection surface.
func (e *Engine) Today() []Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Slot, len(e.slots))
	copy(out, e.slots)
	return out
}

// Refresh drops the in-memory cache and, when regenerate is set, today's
// persisted file too, then runs one evaluation cycle immediately.
func (e *Engine) Refresh(ctx context.Context, regenerate bool) {
	now := e.now()

	e.mu.Lock()
	e.cachedDate = ""
	e.slots = nil
	e.mu.Unlock()

	if regenerate {
		if err := e.store.Remove(now); err != nil {
			e.logger.Warn("removing persisted schedule failed", "error", err)
		}
	}
	e.tick(ctx)
}

// Apply resolves the slot for now and hands the result to the arbiter.
func (e *Engine) Apply(ctx context.Context, now time.Time) {
	e.mu.Lock()
	slots := e.slots
	e.mu.Unlock()

	e.applier.OnScheduleUpdate(ctx, e.resolve(now, slots))
}

// resolve picks the presence value for now. Precedence: a matching slot,
// then sleep inertia off the most recently ended slot, then the time-of-day
// gap fallback.
func (e *Engine) resolve(now time.Time, slots []Slot) status.Status {
	clock := now.Format("15:04")

	var lastEnded *Slot
	for i := range slots {
		s := slots[i]
		if s.contains(clock) {
			return statusFromSlot(s, e.cfg.Presets)
		}
		if !s.overnight() && clock >= s.End {
			lastEnded = &slots[i]
		}
	}

	// Sleep inertia: a just-ended sleep slot keeps holding through the night
	// and early morning, so presence does not flip awake at a boundary the
	// generator placed slightly early.
	if lastEnded != nil && sleepRelated(*lastEnded) {
		if h := now.Hour(); h < 10 || h >= 22 {
			e.logger.Info("no slot matched, extending sleep inertia", "slot", lastEnded.StatusName+lastEnded.Text)
			return statusFromSlot(*lastEnded, e.cfg.Presets)
		}
	}

	return e.gapFallback(now)
}

// gapFallback covers hours with no schedule data at all. Deep night maps to
// a sleep-flavored state, everything else to a plain active one.
func (e *Engine) gapFallback(now time.Time) status.Status {
	hour := now.Hour()

	if hour >= 23 || hour < 6 {
		for _, name := range e.cfg.SleepPresets {
			if p, ok := e.cfg.Presets.Lookup(name); ok {
				e.logger.Info("deep-night gap, applying sleep preset", "hour", hour, "preset", name)
				return status.FromPreset(p, status.OriginSchedule)
			}
		}
		e.logger.Info("deep-night gap, applying built-in sleep state", "hour", hour)
		return status.NewCustom("当猪咪", 75, status.OriginSchedule)
	}

	e.logger.Warn("daytime schedule gap, applying default state", "hour", hour)
	return status.NewStandard(status.MainOnline, status.ExtFallbackScheduleGap, status.OriginSchedule)
}
