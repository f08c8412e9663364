package kehai

import "time"

// Status is a presence value as reported by the daemon.
type Status struct {
	Kind   string `json:"kind"`
	Origin string `json:"origin"`

	MainCode int `json:"main_code"`
	ExtCode  int `json:"ext_code"`

	IconID int    `json:"icon_id,omitempty"`
	Text   string `json:"text,omitempty"`

	Silent    bool          `json:"silent,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Layers is a snapshot of the arbitration layers. Nil fields are empty or
// expired layers.
type Layers struct {
	Schedule      *Status `json:"schedule"`
	Override      *Status `json:"override"`
	Interaction   *Status `json:"interaction"`
	LastConfirmed *Status `json:"last_confirmed"`
}

// StatusResponse is the payload of GET /v1/status.
type StatusResponse struct {
	Active Status `json:"active"`
	Layers Layers `json:"layers"`
}

// Slot is one entry in the daily schedule.
type Slot struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	StatusName string `json:"status_name,omitempty"`
	Text       string `json:"text,omitempty"`
	FaceName   string `json:"face_name,omitempty"`
	Silent     bool   `json:"is_silent,omitempty"`
}

// OverrideRequest is the body of POST /v1/override. Exactly one of Preset
// and Text must be set.
type OverrideRequest struct {
	Preset          string `json:"preset,omitempty"`
	Text            string `json:"text,omitempty"`
	Icon            string `json:"icon,omitempty"`
	Silent          bool   `json:"silent,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// HistoryEntry is one recorded push attempt.
type HistoryEntry struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"`
	Origin   string    `json:"origin"`
	MainCode int       `json:"main_code"`
	ExtCode  int       `json:"ext_code"`
	IconID   int       `json:"icon_id"`
	Text     string    `json:"text,omitempty"`
	OK       bool      `json:"ok"`
}

// Presets lists the preset and icon names the daemon accepts.
type Presets struct {
	Presets []string `json:"presets"`
	Icons   []string `json:"icons"`
}

type scheduleResponse struct {
	Slots []Slot `json:"slots"`
}

type historyResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

type appliedResponse struct {
	Applied Status `json:"applied"`
}

type activeResponse struct {
	Active Status `json:"active"`
}

type userStatusResponse struct {
	UserID int64  `json:"user_id"`
	Status Status `json:"status"`
}
