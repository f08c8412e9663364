package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/status"
)

// Slot is one entry of a daily schedule. Exactly one of two shapes is
// expected: a preset reference (StatusName set) or a custom state (Text set,
// optionally FaceName and Silent). Start and End are wall-clock "HH:MM".
type Slot struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	StatusName string `json:"status_name,omitempty"`
	Text       string `json:"text,omitempty"`
	FaceName   string `json:"face_name,omitempty"`
	Silent     bool   `json:"is_silent,omitempty"`
}

// overnight reports whether the slot wraps past midnight.
func (s Slot) overnight() bool {
	return s.End < s.Start
}

// contains reports whether clock (an "HH:MM" string) falls inside the slot.
// Same-day slots match start <= clock < end; overnight slots match the
// complement wrap: clock >= start or clock < end.
func (s Slot) contains(clock string) bool {
	if s.overnight() {
		return clock >= s.Start || clock < s.End
	}
	return s.Start <= clock && clock < s.End
}

// normalizeClock canonicalizes a slot boundary to zero-padded "HH:MM".
// Full-width colons (common in generated text) are folded to ASCII. An
// unparseable boundary returns ok=false.
func normalizeClock(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "：", ":"))
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

// Sanitize validates and repairs generated slots: boundaries are normalized
// to canonical HH:MM (slots with unparseable boundaries are dropped), a slot
// carrying both a preset reference and custom text keeps only the preset
// reference, and the result is sorted by start time. The returned slice is
// always a fresh copy.
func Sanitize(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		start, ok := normalizeClock(s.Start)
		if !ok {
			continue
		}
		end, ok := normalizeClock(s.End)
		if !ok {
			continue
		}
		s.Start, s.End = start, end

		// Generators sometimes fill both shapes at once. The preset
		// reference is more trustworthy than free text.
		if s.StatusName != "" && s.Text != "" {
			s.Text = ""
			s.FaceName = ""
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// sleepKeywords flags slots describing sleep or rest, for the inertia rule.
var sleepKeywords = []string{"睡", "sleep", "rest", "休息", "晚安", "梦"}

func sleepRelated(s Slot) bool {
	combined := strings.ToLower(s.StatusName + s.Text)
	for _, k := range sleepKeywords {
		if strings.Contains(combined, k) {
			return true
		}
	}
	return false
}

// statusFromSlot maps a slot to a presence value. Custom text wins over a
// preset reference; the icon comes from the face name, then from an icon
// preset sharing the slot's status name, then the default. A bare preset
// reference resolves through the preset set. Anything unresolvable falls
// back to a plain online state.
func statusFromSlot(s Slot, presets *preset.Set) status.Status {
	if s.Text != "" {
		iconID := status.DefaultIconID
		if id, ok := presets.IconID(s.FaceName); ok {
			iconID = id
		} else if id, ok := presets.IconID(s.StatusName); ok {
			iconID = id
		}
		return status.NewCustom(s.Text, iconID, status.OriginSchedule).WithSilent(s.Silent)
	}

	if s.StatusName != "" {
		if p, ok := presets.Lookup(s.StatusName); ok {
			return status.FromPreset(p, status.OriginSchedule)
		}
	}

	return status.NewStandard(status.MainOnline, status.ExtFallbackScheduleGap, status.OriginSchedule)
}
