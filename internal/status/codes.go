package status

import "time"

// Standard presence main codes, as defined by the QQ protocol.
const (
	MainOnline       = 10
	MainOffline      = 20
	MainAway         = 30
	MainInvisible    = 40
	MainBusy         = 50
	MainDoNotDisturb = 70
)

// Extended status codes. ExtCustom is the sentinel the backend reports when a
// custom (icon + text) presence is active; the read API cannot report the
// wording itself.
const (
	ExtNone   = 0
	ExtCustom = 2000
)

// Icon categories. Icon ids below EmojiThreshold are built-in system faces;
// ids at or above it are emoji.
const (
	IconCategorySystem = 1
	IconCategoryEmoji  = 2

	EmojiThreshold = 5027
)

// Fallback extended codes used when a preset lookup misses. The values are
// backend-defined moods; they only need to be valid, not meaningful.
const (
	ExtFallbackActive      = 1058 // "full of energy"
	ExtFallbackWake        = 1060 // "bored"
	ExtFallbackScheduleGap = 1300 // "slacking off"
	ExtFallbackOverride    = 1052 // "I'm fine"
)

// DefaultIconID is the icon used when a custom status has no explicit icon.
const DefaultIconID = 21

// TextWidthLimit caps custom status text at 8 display-width units. A rune
// above the Basic Multilingual Plane counts as 2 units.
const TextWidthLimit = 8

// Layer lifetimes.
const (
	InteractionTTL = 60 * time.Second
	OverrideTTL    = 45 * time.Minute
)

// Unbounded is the sentinel RemainingAt returns for a status without a TTL.
const Unbounded time.Duration = -1
