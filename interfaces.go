package kehai

import (
	"context"
	"time"
)

// ScheduleGenerator produces the slot list for one calendar date. When
// provided via WithGenerator it replaces the built-in chat-completions
// generator. It may be slow (seconds); it is always invoked off the
// evaluation loop's critical path.
type ScheduleGenerator interface {
	GenerateDaily(ctx context.Context, date time.Time) ([]Slot, error)
}

// OverrideAuthorizer decides whether an override request from the assistant
// surface (the MCP tools) is accepted. A false return rejects the request
// without touching any arbitration layer; the caller sees a normal rejection,
// not an error. Without WithAuthorizer every request is accepted (the admin
// API keeps its own bearer-token gate).
type OverrideAuthorizer interface {
	Authorize(ctx context.Context) bool
}

// StatusPusher delivers an arbitrated presence value to a backend. When
// provided via WithPusher it replaces the built-in OneBot adapter, including
// its retry and reconciliation logic. The implementation owns the full
// delivery contract and reports plain success or failure.
type StatusPusher interface {
	Push(ctx context.Context, target Status) bool
}
