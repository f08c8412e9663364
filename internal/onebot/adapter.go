package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kehai/internal/status"
	"github.com/ashita-ai/kehai/internal/telemetry"
)

// AdapterConfig tunes the push retry and reconciliation behavior.
type AdapterConfig struct {
	// Retries is the number of push attempts before giving up. Minimum 1.
	Retries int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// SettleDelay is how long to wait before a reconciliation read, giving
	// the backend time to propagate an unacknowledged write.
	SettleDelay time.Duration
	// CacheTTL bounds how long user presence reads are served from memory.
	CacheTTL time.Duration
}

func (c *AdapterConfig) applyDefaults() {
	if c.Retries < 1 {
		c.Retries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3 * time.Minute
	}
}

// Adapter pushes arbitrated presence values to the backend and reads presence
// back for reconciliation. All methods are safe for concurrent use.
type Adapter struct {
	client *Client
	cfg    AdapterConfig
	logger *slog.Logger
	cache  *statusCache

	selfID atomic.Int64 // 0 = not yet resolved

	pushes          metric.Int64Counter
	retries         metric.Int64Counter
	reconciliations metric.Int64Counter
}

// NewAdapter creates an Adapter on top of a Client. Call Close when done.
func NewAdapter(client *Client, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	cfg.applyDefaults()
	a := &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "onebot"),
		cache:  newStatusCache(cfg.CacheTTL),
	}

	meter := telemetry.Meter("kehai/onebot")
	a.pushes, _ = meter.Int64Counter("kehai.push.total",
		metric.WithDescription("Presence pushes by outcome"))
	a.retries, _ = meter.Int64Counter("kehai.push.retries",
		metric.WithDescription("Push attempts beyond the first"))
	a.reconciliations, _ = meter.Int64Counter("kehai.push.reconciliations",
		metric.WithDescription("Read-after-write reconciliation checks by outcome"))

	return a
}

// Close releases the adapter's background resources.
func (a *Adapter) Close() {
	a.cache.close()
}

// Push sends a presence value to the backend. It retries with jittered
// exponential backoff on anything short of explicit success and falls back to
// a reconciliation read before reporting failure. The return value is the
// best-effort truth of whether the backend now shows the target state.
func (a *Adapter) Push(ctx context.Context, target status.Status) bool {
	action, params := pushCall(target)
	delay := a.cfg.BaseDelay

	for attempt := 1; attempt <= a.cfg.Retries; attempt++ {
		if attempt > 1 {
			a.retries.Add(ctx, 1)
		}

		reply, err := a.client.CallAction(ctx, action, params)
		switch {
		case err == nil && reply.OK():
			a.confirmPush(ctx, target)
			a.logger.Info("push confirmed", "status", target.String(), "attempt", attempt)
			return true

		case err == nil && !reply.Parsed():
			// Malformed body. The lenient heuristic catches success envelopes
			// wrapped in garbage; anything else falls through to retry.
			if reply.LenientOK() {
				a.confirmPush(ctx, target)
				a.logger.Warn("push accepted via lenient parse", "status", target.String(), "attempt", attempt)
				return true
			}
			a.logger.Warn("push reply malformed", "action", action, "attempt", attempt)

		case err == nil:
			a.logger.Warn("push rejected", "action", action, "attempt", attempt,
				"retcode", reply.Retcode, "message", reply.Message)

		case IsNoResponse(err):
			a.logger.Warn("push got no response", "action", action, "attempt", attempt, "error", err)
			// The backend sometimes applies a write while failing to answer.
			// For standard pushes the applied state is cheaply observable, so
			// check before burning another attempt.
			if target.Kind == status.KindStandard && a.reconcile(ctx, target) {
				return true
			}

		default:
			a.logger.Warn("push failed", "action", action, "attempt", attempt, "error", err)
		}

		if attempt < a.cfg.Retries {
			if !sleepCtx(ctx, jittered(delay)) {
				a.pushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "canceled")))
				return false
			}
			delay = min(delay*2, a.cfg.MaxDelay)
		}
	}

	// Retries exhausted. One last reconciliation read: the push may have
	// landed despite every reply being ambiguous.
	if a.reconcile(ctx, target) {
		a.logger.Info("push confirmed by final reconciliation", "status", target.String())
		return true
	}

	a.pushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))
	a.logger.Error("push failed after retries", "status", target.String(), "attempts", a.cfg.Retries)
	return false
}

func (a *Adapter) confirmPush(ctx context.Context, target status.Status) {
	a.pushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	if id := a.selfID.Load(); id != 0 {
		a.cache.invalidate(id)
	}
}

// pushCall maps a Status onto its backend call shape.
func pushCall(st status.Status) (action string, params any) {
	if st.Kind == status.KindCustom {
		return actionSetCustom, map[string]any{
			"face_id":   st.IconID,
			"face_type": st.IconCategory,
			"wording":   st.Text,
		}
	}
	return actionSetStandard, map[string]any{
		"status":         st.MainCode,
		"ext_status":     st.ExtCode,
		"battery_status": st.BatteryHint,
	}
}

// reconcile reads the agent's own presence back and compares it to the
// target. For custom targets the text is unknowable on read-back, so seeing
// the custom sentinel counts as a match.
func (a *Adapter) reconcile(ctx context.Context, target status.Status) bool {
	selfID, err := a.SelfID(ctx)
	if err != nil {
		a.logger.Warn("reconciliation skipped: self id unknown", "error", err)
		return false
	}

	if !sleepCtx(ctx, a.cfg.SettleDelay) {
		return false
	}

	current, err := a.UserStatus(ctx, selfID, false)
	if err != nil {
		a.reconciliations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		a.logger.Warn("reconciliation read failed", "error", err)
		return false
	}

	var match bool
	if target.Kind == status.KindCustom {
		match = current.Kind == status.KindCustom
	} else {
		match = current.MainCode == target.MainCode && current.ExtCode == target.ExtCode
	}

	outcome := "mismatch"
	if match {
		outcome = "match"
		a.pushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "reconciled")))
	}
	a.reconciliations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	a.logger.Debug("reconciliation check", "target", target.String(), "observed", current.String(), "match", match)
	return match
}

// UserStatus reads a user's presence. Cached results are served for the
// configured TTL unless useCache is false.
func (a *Adapter) UserStatus(ctx context.Context, userID int64, useCache bool) (status.Status, error) {
	if useCache {
		if st, ok := a.cache.get(userID); ok {
			return st, nil
		}
	}

	reply, err := a.client.CallAction(ctx, actionGetUserStatus, map[string]any{"user_id": userID})
	if err != nil {
		return status.Status{}, err
	}
	if !reply.OK() {
		return status.Status{}, fmt.Errorf("onebot: %s: rejected: retcode %d", actionGetUserStatus, reply.Retcode)
	}

	st := status.FromBackendReply(reply.Data)
	a.cache.set(userID, st)
	return st, nil
}

// SelfID resolves the agent's own numeric identity, cached indefinitely
// after the first success.
func (a *Adapter) SelfID(ctx context.Context) (int64, error) {
	if id := a.selfID.Load(); id != 0 {
		return id, nil
	}

	reply, err := a.client.CallAction(ctx, actionGetLoginInfo, map[string]any{})
	if err != nil {
		return 0, err
	}
	if !reply.OK() {
		return 0, fmt.Errorf("onebot: %s: rejected: retcode %d", actionGetLoginInfo, reply.Retcode)
	}

	var info struct {
		UserID json.Number `json:"user_id"`
	}
	if err := json.Unmarshal(reply.Data, &info); err != nil {
		return 0, fmt.Errorf("onebot: %s: decode data: %w", actionGetLoginInfo, err)
	}
	id, err := info.UserID.Int64()
	if err != nil || id == 0 {
		return 0, fmt.Errorf("onebot: %s: missing user_id", actionGetLoginInfo)
	}

	a.selfID.Store(id)
	a.logger.Info("resolved self id", "user_id", id)
	return id, nil
}

// jittered adds up to one base delay of random jitter so concurrent pushes
// do not retry in lockstep.
func jittered(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int64N(int64(d))) //nolint:gosec // jitter doesn't need crypto-strength randomness
}

// sleepCtx waits for d, returning false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
