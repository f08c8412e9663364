package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/kehai/internal/arbiter"
	"github.com/ashita-ai/kehai/internal/history"
	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/schedule"
	"github.com/ashita-ai/kehai/internal/status"
)

// PresenceReader looks up a remote user's displayed status. The backend
// adapter implements it.
type PresenceReader interface {
	UserStatus(ctx context.Context, userID int64, useCache bool) (status.Status, error)
}

// HistoryLister reads the push audit trail.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	arb     *arbiter.Arbiter
	engine  *schedule.Engine
	reader  PresenceReader
	hist    HistoryLister
	presets *preset.Set
	logger  *slog.Logger
	version string
}

// HandlersDeps wires handler dependencies. Reader and Hist are nil-safe:
// their endpoints answer 503 when absent.
type HandlersDeps struct {
	Arbiter *arbiter.Arbiter
	Engine  *schedule.Engine
	Reader  PresenceReader
	Hist    HistoryLister
	Presets *preset.Set
	Logger  *slog.Logger
	Version string
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		arb:     deps.Arbiter,
		engine:  deps.Engine,
		reader:  deps.Reader,
		hist:    deps.Hist,
		presets: deps.Presets,
		logger:  deps.Logger,
		version: deps.Version,
	}
}

// HandleHealth answers the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// onebotEvent is the subset of the OneBot v11 event envelope we care about.
type onebotEvent struct {
	PostType    string `json:"post_type"`
	MessageType string `json:"message_type,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// HandleOneBotEvent receives the backend's event webhook. Message events
// trigger the interaction layer; everything else is acknowledged and
// dropped.
func (h *Handlers) HandleOneBotEvent(w http.ResponseWriter, r *http.Request) {
	var ev onebotEvent
	if err := decodeJSONLenient(r, &ev); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid event payload")
		return
	}

	if ev.PostType == "message" {
		h.logger.Debug("interaction event received", "message_type", ev.MessageType, "user_id", ev.UserID)
		h.arb.OnInteractionEvent(r.Context())
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetStatus reports the active value and all arbitration layers.
func (h *Handlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"active": h.arb.ComputeActive(),
		"layers": h.arb.Snapshot(),
	})
}

// overrideRequest is the body of POST /v1/override. Exactly one of Preset
// and Text must be set.
type overrideRequest struct {
	Preset          string `json:"preset,omitempty"`
	Text            string `json:"text,omitempty"`
	Icon            string `json:"icon,omitempty"`
	Silent          bool   `json:"silent,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// HandleSetOverride places an override on the arbiter.
func (h *Handlers) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	var target status.Status
	switch {
	case req.Preset != "" && req.Text != "":
		writeError(w, r, http.StatusBadRequest, "bad_request", "preset and text are mutually exclusive")
		return
	case req.Preset != "":
		p, ok := h.presets.Lookup(req.Preset)
		if !ok {
			writeError(w, r, http.StatusNotFound, "not_found", "unknown preset "+strconv.Quote(req.Preset))
			return
		}
		target = status.FromPreset(p, status.OriginOverride)
	case req.Text != "":
		iconID := status.DefaultIconID
		if id, ok := h.presets.IconID(req.Icon); ok {
			iconID = id
		}
		target = status.NewCustom(req.Text, iconID, status.OriginOverride).WithSilent(req.Silent)
	default:
		writeError(w, r, http.StatusBadRequest, "bad_request", "either preset or text is required")
		return
	}

	if req.DurationSeconds > 0 {
		target = target.WithTTL(time.Duration(req.DurationSeconds) * time.Second)
	}

	h.arb.OnOverrideRequest(r.Context(), target)
	writeJSON(w, r, http.StatusOK, map[string]any{"applied": target})
}

// HandleClearOverride drops the override layer.
func (h *Handlers) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	h.arb.OnOverrideClear(r.Context())
	writeJSON(w, r, http.StatusOK, map[string]any{"active": h.arb.ComputeActive()})
}

// HandleSync forces a push of the current active value, bypassing the
// change debounce.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	h.arb.SyncIfChanged(r.Context(), true)
	writeJSON(w, r, http.StatusOK, map[string]any{"active": h.arb.ComputeActive()})
}

// HandleGetSchedule reports the cached daily schedule.
func (h *Handlers) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"slots": h.engine.Today()})
}

// refreshRequest is the body of POST /v1/refresh.
type refreshRequest struct {
	Regenerate bool `json:"regenerate,omitempty"`
}

// HandleRefresh drops the cached schedule (optionally the persisted file
// too) and runs one evaluation cycle.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSONLenient(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	h.engine.Refresh(r.Context(), req.Regenerate)
	writeJSON(w, r, http.StatusOK, map[string]any{"slots": h.engine.Today()})
}

// HandleUserStatus reads a remote user's displayed presence.
func (h *Handlers) HandleUserStatus(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "backend not connected")
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "user_id must be numeric")
		return
	}

	st, err := h.reader.UserStatus(r.Context(), userID, true)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "backend_error", "status lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user_id": userID, "status": st})
}

// HandleHistory lists recent push attempts, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "history disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be numeric")
			return
		}
		limit = n
	}

	entries, err := h.hist.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "history query failed")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries})
}

// HandlePresets lists the configured preset and icon names.
func (h *Handlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"presets": h.presets.Names(),
		"icons":   h.presets.IconNames(),
	})
}
