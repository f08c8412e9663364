// Package status defines the presence value pushed to the messaging backend
// and the factory rules for constructing one. A Status is immutable by
// convention: state transitions create a new value, they never edit one in
// place.
package status

import (
	"fmt"
	"time"
)

// Kind distinguishes the two backend call shapes.
type Kind string

const (
	KindStandard Kind = "standard"
	KindCustom   Kind = "custom"
)

// Origin records which arbitration layer produced a Status. It is local
// bookkeeping only and never reaches the backend.
type Origin string

const (
	OriginSchedule    Origin = "schedule"
	OriginOverride    Origin = "override"
	OriginInteraction Origin = "interaction"
)

// Status is the desired visible availability state.
//
// For KindStandard only MainCode, ExtCode, and BatteryHint are
// backend-visible; for KindCustom only IconID, IconCategory, and Text are.
// Origin, Silent, TTL, and CreatedAt are local bookkeeping on both kinds.
type Status struct {
	Kind   Kind   `json:"kind"`
	Origin Origin `json:"origin"`

	MainCode    int `json:"main_code"`
	ExtCode     int `json:"ext_code"`
	BatteryHint int `json:"battery_hint,omitempty"`

	IconID       int    `json:"icon_id,omitempty"`
	IconCategory int    `json:"icon_category,omitempty"`
	Text         string `json:"text,omitempty"`

	Silent    bool          `json:"silent,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty"` // 0 = unbounded
	CreatedAt time.Time     `json:"created_at"`
}

// ExpiredAt reports whether the status has outlived its TTL at time now.
// A status without a TTL never expires.
func (s Status) ExpiredAt(now time.Time) bool {
	if s.TTL <= 0 {
		return false
	}
	return now.Sub(s.CreatedAt) > s.TTL
}

// RemainingAt returns the time left before expiry, clamped at zero, or
// Unbounded for a status without a TTL.
func (s Status) RemainingAt(now time.Time) time.Duration {
	if s.TTL <= 0 {
		return Unbounded
	}
	if left := s.TTL - now.Sub(s.CreatedAt); left > 0 {
		return left
	}
	return 0
}

// PayloadEquals compares only the backend-visible fields: (MainCode, ExtCode)
// for standard statuses, (IconID, Text) for custom ones. Origin, TTL,
// CreatedAt, Silent, and BatteryHint are bookkeeping: they differ between
// layers without implying a backend-visible change.
func (s Status) PayloadEquals(other Status) bool {
	if s.Kind != other.Kind {
		return false
	}
	switch s.Kind {
	case KindStandard:
		return s.MainCode == other.MainCode && s.ExtCode == other.ExtCode
	case KindCustom:
		return s.IconID == other.IconID && s.Text == other.Text
	}
	return false
}

// WithTTL returns a copy of the status carrying the given lifetime.
func (s Status) WithTTL(d time.Duration) Status {
	s.TTL = d
	return s
}

// WithSilent returns a copy of the status with the silent flag set.
func (s Status) WithSilent(silent bool) Status {
	s.Silent = silent
	return s
}

// String renders a compact description for logs.
func (s Status) String() string {
	if s.Kind == KindCustom {
		return fmt.Sprintf("[%s] custom %q (icon %d)", s.Origin, s.Text, s.IconID)
	}
	return fmt.Sprintf("[%s] standard %d/%d", s.Origin, s.MainCode, s.ExtCode)
}
