// Package preset holds the operator-configured name→attribute tables that map
// human-readable status names ("在线", "睡觉中", "写Bug") onto concrete protocol
// fields. The tables are loaded once at startup and are read-only afterwards.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
)

// Preset is either a Standard or a Custom preset. The marker method keeps the
// sum closed; callers type-switch on the concrete type.
type Preset interface {
	PresetName() string
}

// Standard maps a name onto a standard presence (main code + extended code).
type Standard struct {
	Name     string `json:"name"`
	MainCode int    `json:"main_code"`
	ExtCode  int    `json:"ext_code"`
	Silent   bool   `json:"silent"`
}

// PresetName implements Preset.
func (p Standard) PresetName() string { return p.Name }

// Custom maps a name onto a custom presence (icon + display text).
type Custom struct {
	Name   string `json:"name"`
	IconID int    `json:"icon_id"`
	Text   string `json:"text"`
	Silent bool   `json:"silent"`
}

// PresetName implements Preset.
func (p Custom) PresetName() string { return p.Name }

// Icon maps a name onto a bare icon id, used when a schedule slot carries
// inline custom text plus an icon name.
type Icon struct {
	Name   string `json:"name"`
	IconID int    `json:"icon_id"`
}

// Set is the full preset configuration.
type Set struct {
	standard map[string]Standard
	custom   map[string]Custom
	icons    map[string]Icon
}

// fileFormat is the on-disk JSON shape of a preset file.
type fileFormat struct {
	Standard []Standard `json:"standard"`
	Custom   []Custom   `json:"custom"`
	Icons    []Icon     `json:"icons"`
}

// New builds a Set from slices, skipping entries with empty names.
func New(standard []Standard, custom []Custom, icons []Icon) *Set {
	s := &Set{
		standard: make(map[string]Standard, len(standard)),
		custom:   make(map[string]Custom, len(custom)),
		icons:    make(map[string]Icon, len(icons)),
	}
	for _, p := range standard {
		if p.Name != "" {
			s.standard[p.Name] = p
		}
	}
	for _, p := range custom {
		if p.Name != "" {
			s.custom[p.Name] = p
		}
	}
	for _, ic := range icons {
		if ic.Name != "" {
			s.icons[ic.Name] = ic
		}
	}
	return s
}

// LoadFile reads a preset file. A missing path ("" argument) yields an empty
// set rather than an error; the rest of the system falls back to hardcoded
// defaults when a lookup misses.
func LoadFile(path string) (*Set, error) {
	if path == "" {
		return New(nil, nil, nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: read %s: %w", path, err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("preset: parse %s: %w", path, err)
	}
	return New(f.Standard, f.Custom, f.Icons), nil
}

// Lookup resolves a name to a preset. Custom presets shadow standard ones with
// the same name, matching how the original configuration resolves collisions.
func (s *Set) Lookup(name string) (Preset, bool) {
	if p, ok := s.custom[name]; ok {
		return p, true
	}
	if p, ok := s.standard[name]; ok {
		return p, true
	}
	return nil, false
}

// IconID resolves an icon name to its id.
func (s *Set) IconID(name string) (int, bool) {
	ic, ok := s.icons[name]
	if !ok {
		return 0, false
	}
	return ic.IconID, true
}

// Names returns all preset names (custom and standard), used to build the
// resource-pool sections of the schedule-generation prompt.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.custom)+len(s.standard))
	for name := range s.custom {
		names = append(names, name)
	}
	for name := range s.standard {
		if _, shadowed := s.custom[name]; !shadowed {
			names = append(names, name)
		}
	}
	return names
}

// IconNames returns all icon names.
func (s *Set) IconNames() []string {
	names := make([]string, 0, len(s.icons))
	for name := range s.icons {
		names = append(names, name)
	}
	return names
}
