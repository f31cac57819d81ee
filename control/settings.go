// Package control manages the playground's user-facing state: channel
// settings, named presets, and the controller that turns edits into
// simulation restarts.
package control

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Rustcosky/nca-playground/kernel"
)

// Channel holds the filter and activation of one color channel.
type Channel struct {
	// Filter is the 3x3 convolution kernel, row-major.
	Filter [9]float32 `json:"filter"`

	// Activation is the per-cell activation as program source.
	Activation string `json:"activation_fn"`
}

// DefaultChannel passes values through unchanged.
func DefaultChannel() Channel {
	return Channel{
		Filter:     kernel.IdentityFilter().Array(),
		Activation: "return x;",
	}
}

// Settings is the full per-channel configuration, persisted as JSON.
type Settings struct {
	Red   Channel `json:"red"`
	Green Channel `json:"green"`
	Blue  Channel `json:"blue"`
}

// DefaultSettings returns identity settings for all three channels.
func DefaultSettings() Settings {
	return Settings{
		Red:   DefaultChannel(),
		Green: DefaultChannel(),
		Blue:  DefaultChannel(),
	}
}

// Filters returns the three filters in channel order.
func (s Settings) Filters() [3]kernel.Filter {
	return [3]kernel.Filter{
		kernel.FilterFromArray(s.Red.Filter),
		kernel.FilterFromArray(s.Green.Filter),
		kernel.FilterFromArray(s.Blue.Filter),
	}
}

// Activations returns the three activation sources in channel order.
func (s Settings) Activations() [3]string {
	return [3]string{s.Red.Activation, s.Green.Activation, s.Blue.Activation}
}

// Validate compiles all three activations, reporting the first failure.
func (s Settings) Validate() error {
	for _, ch := range []struct {
		name string
		src  string
	}{
		{"red", s.Red.Activation},
		{"green", s.Green.Activation},
		{"blue", s.Blue.Activation},
	} {
		if _, err := kernel.CompileActivation(ch.src); err != nil {
			return fmt.Errorf("control: %s channel: %w", ch.name, err)
		}
	}
	return nil
}

// ReadSettings loads settings from the given path. A missing or
// unparsable file yields the defaults, and the file is rewritten with
// them so the next run starts from a known state.
func ReadSettings(path string) Settings {
	slogger().Info("reading settings", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		slogger().Info("settings file unreadable, using defaults", "error", err)
		s := DefaultSettings()
		if werr := WriteSettings(path, s); werr != nil {
			slogger().Error("rewriting default settings failed", "error", werr)
		}
		return s
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		slogger().Info("settings file unparsable, using defaults", "error", err)
		s = DefaultSettings()
		if werr := WriteSettings(path, s); werr != nil {
			slogger().Error("rewriting default settings failed", "error", werr)
		}
		return s
	}
	return s
}

// WriteSettings persists settings as indented JSON.
func WriteSettings(path string, s Settings) error {
	slogger().Info("writing settings", "path", path)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("control: encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("control: write settings: %w", err)
	}
	return nil
}
