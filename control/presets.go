package control

import (
	"encoding/json"
	"fmt"
	"os"
)

// FilterPreset is a named 3x3 filter, row-major.
type FilterPreset struct {
	Name   string     `json:"name"`
	Filter [9]float32 `json:"filter"`
}

// ActivationPreset is a named activation source.
type ActivationPreset struct {
	Name   string `json:"name"`
	Source string `json:"activation_fn"`
}

// Presets is the library of saved filters and activations, persisted as
// JSON next to the settings.
type Presets struct {
	Filters     []FilterPreset     `json:"filter_presets"`
	Activations []ActivationPreset `json:"activation_fn_presets"`
}

// AddFilter appends a named filter preset.
func (p *Presets) AddFilter(name string, filter [9]float32) {
	p.Filters = append(p.Filters, FilterPreset{Name: name, Filter: filter})
}

// AddActivation appends a named activation preset.
func (p *Presets) AddActivation(name, source string) {
	p.Activations = append(p.Activations, ActivationPreset{Name: name, Source: source})
}

// FindFilter looks up a filter preset by name.
func (p *Presets) FindFilter(name string) ([9]float32, bool) {
	for _, f := range p.Filters {
		if f.Name == name {
			return f.Filter, true
		}
	}
	return [9]float32{}, false
}

// FindActivation looks up an activation preset by name.
func (p *Presets) FindActivation(name string) (string, bool) {
	for _, a := range p.Activations {
		if a.Name == name {
			return a.Source, true
		}
	}
	return "", false
}

// ReadPresets loads the preset library from the given path. A missing or
// unparsable file yields an empty library, and the file is rewritten.
func ReadPresets(path string) Presets {
	slogger().Info("reading presets", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		slogger().Info("preset file unreadable, using empty library", "error", err)
		var p Presets
		if werr := WritePresets(path, p); werr != nil {
			slogger().Error("rewriting empty presets failed", "error", werr)
		}
		return p
	}

	var p Presets
	if err := json.Unmarshal(data, &p); err != nil {
		slogger().Info("preset file unparsable, using empty library", "error", err)
		p = Presets{}
		if werr := WritePresets(path, p); werr != nil {
			slogger().Error("rewriting empty presets failed", "error", werr)
		}
		return p
	}
	return p
}

// WritePresets persists the preset library as indented JSON.
func WritePresets(path string, p Presets) error {
	slogger().Info("writing presets", "path", path)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("control: encode presets: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("control: write presets: %w", err)
	}
	return nil
}
