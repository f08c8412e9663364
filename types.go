package kehai

// Public mirror types for the extension interfaces. They carry no internal
// imports so external consumers can implement the interfaces without
// reaching into internal packages.

// Slot is one entry of a generated daily schedule. Start and End are
// wall-clock "HH:MM"; an End before Start wraps past midnight. Exactly one
// of StatusName (a configured preset) or Text (custom wording) should be
// set.
type Slot struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	StatusName string `json:"status_name,omitempty"`
	Text       string `json:"text,omitempty"`
	FaceName   string `json:"face_name,omitempty"`
	Silent     bool   `json:"is_silent,omitempty"`
}

// Status is the payload of one presence push as seen by a custom pusher.
type Status struct {
	// Kind is "standard" or "custom".
	Kind string `json:"kind"`
	// Origin is "schedule", "override", or "interaction".
	Origin   string `json:"origin"`
	MainCode int    `json:"main_code"`
	ExtCode  int    `json:"ext_code"`
	IconID   int    `json:"icon_id"`
	Text     string `json:"text,omitempty"`
	Silent   bool   `json:"silent"`
}
