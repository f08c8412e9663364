package status

import (
	"encoding/json"
	"time"

	"github.com/ashita-ai/kehai/internal/preset"
)

// NewStandard builds a standard presence. Inputs are taken as-is; the protocol
// accepts arbitrary code pairs, so validation is the backend's problem.
func NewStandard(mainCode, extCode int, origin Origin) Status {
	return Status{
		Kind:         KindStandard,
		Origin:       origin,
		MainCode:     mainCode,
		ExtCode:      extCode,
		IconCategory: IconCategorySystem,
		CreatedAt:    time.Now(),
	}
}

// NewCustom builds a custom presence. Text is truncated to the display-width
// cap and the icon category is derived from the id, so every creation path
// applies the same rules.
func NewCustom(text string, iconID int, origin Origin) Status {
	return Status{
		Kind:         KindCustom,
		Origin:       origin,
		MainCode:     MainOnline,
		ExtCode:      ExtNone,
		IconID:       iconID,
		IconCategory: iconCategory(iconID),
		Text:         TruncateText(text),
		CreatedAt:    time.Now(),
	}
}

// FromPreset resolves a preset into a Status. A nil or unrecognized preset
// degrades to a safe standard fallback rather than failing: schedule data is
// untrusted and a bad name must never take the driver loop down.
func FromPreset(p preset.Preset, origin Origin) Status {
	switch p := p.(type) {
	case preset.Custom:
		return NewCustom(p.Text, p.IconID, origin).WithSilent(p.Silent)
	case preset.Standard:
		return NewStandard(p.MainCode, p.ExtCode, origin).WithSilent(p.Silent)
	}
	return NewStandard(MainOnline, ExtFallbackActive, origin)
}

// backendReply is the lenient shape of a presence read. The backend is
// inconsistent about number encoding, so both fields go through json.Number.
type backendReply struct {
	Status    json.Number `json:"status"`
	ExtStatus json.Number `json:"ext_status"`
}

// RemoteCustomText is the placeholder wording for a custom status observed on
// read-back; the backend reports the ExtCustom sentinel but not the text.
const RemoteCustomText = "<remote custom>"

// FromBackendReply parses a presence read into a Status. Malformed fields
// degrade to online/none rather than erroring. When the reply carries the
// custom sentinel the result is a custom Status with placeholder text.
func FromBackendReply(raw []byte) Status {
	var reply backendReply
	_ = json.Unmarshal(raw, &reply)

	mainCode := numberOr(reply.Status, MainOnline)
	extCode := numberOr(reply.ExtStatus, ExtNone)

	if extCode == ExtCustom {
		s := NewCustom(RemoteCustomText, 0, OriginInteraction)
		s.MainCode = mainCode
		s.ExtCode = extCode
		return s
	}
	return NewStandard(mainCode, extCode, OriginInteraction)
}

func numberOr(n json.Number, fallback int) int {
	v, err := n.Int64()
	if err != nil {
		return fallback
	}
	return int(v)
}

func iconCategory(iconID int) int {
	if iconID < EmojiThreshold {
		return IconCategorySystem
	}
	return IconCategoryEmoji
}

// TruncateText caps text at TextWidthLimit display-width units, counting
// runes above the Basic Multilingual Plane as two units. Truncation stops
// before the cap would be exceeded, never mid-rune.
func TruncateText(text string) string {
	width := 0
	for i, r := range text {
		w := 1
		if r > 0xFFFF {
			w = 2
		}
		if width+w > TextWidthLimit {
			return text[:i]
		}
		width += w
	}
	return text
}
