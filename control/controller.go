package control

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Rustcosky/nca-playground/kernel"
)

// Simulation is the slice of the pipeline the controller drives.
type Simulation interface {
	SetProgramSource(source string)
	SetFilters(filters [3]kernel.Filter)
}

// Restarter receives reinitialization requests.
type Restarter interface {
	Post()
}

// Channel indices for the per-channel setters.
const (
	ChannelRed = iota
	ChannelGreen
	ChannelBlue
)

// Controller owns the live settings and translates edits into program
// rebuilds, filter uploads and restarts.
type Controller struct {
	sim    Simulation
	reinit Restarter
	tile   int

	settingsPath string
	presetsPath  string

	// shaderPath, when set, receives a copy of each generated program.
	// Mirrors keeping the shader on disk next to the program for
	// inspection.
	shaderPath string

	settings Settings
	presets  Presets
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettingsPath sets where settings persist. Default "settings.json".
func WithSettingsPath(path string) Option {
	return func(c *Controller) { c.settingsPath = path }
}

// WithPresetsPath sets where the preset library persists. Default
// "presets.json".
func WithPresetsPath(path string) Option {
	return func(c *Controller) { c.presetsPath = path }
}

// WithShaderExport writes each generated program to the given path.
func WithShaderExport(path string) Option {
	return func(c *Controller) { c.shaderPath = path }
}

// NewController loads settings and presets from disk and pushes the
// initial program and filters into the simulation.
func NewController(s Simulation, reinit Restarter, tile int, opts ...Option) (*Controller, error) {
	c := &Controller{
		sim:          s,
		reinit:       reinit,
		tile:         tile,
		settingsPath: "settings.json",
		presetsPath:  "presets.json",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.settings = ReadSettings(c.settingsPath)
	if err := c.settings.Validate(); err != nil {
		slogger().Error("stored settings invalid, using defaults", "error", err)
		c.settings = DefaultSettings()
	}
	c.presets = ReadPresets(c.presetsPath)

	if err := c.UpdateActivations(); err != nil {
		return nil, err
	}
	c.UpdateFilters()
	return c, nil
}

// Settings returns a copy of the live settings.
func (c *Controller) Settings() Settings { return c.settings }

// Presets exposes the preset library.
func (c *Controller) Presets() *Presets { return &c.presets }

// SetActivation replaces one channel's activation after validating it.
// The change reaches the simulation on the next UpdateActivations.
func (c *Controller) SetActivation(channel int, source string) error {
	if _, err := kernel.CompileActivation(source); err != nil {
		return err
	}
	switch channel {
	case ChannelRed:
		c.settings.Red.Activation = source
	case ChannelGreen:
		c.settings.Green.Activation = source
	case ChannelBlue:
		c.settings.Blue.Activation = source
	default:
		return fmt.Errorf("control: no channel %d", channel)
	}
	return nil
}

// SetFilter replaces one channel's filter. The change reaches the
// simulation on the next UpdateFilters.
func (c *Controller) SetFilter(channel int, filter [9]float32) error {
	switch channel {
	case ChannelRed:
		c.settings.Red.Filter = filter
	case ChannelGreen:
		c.settings.Green.Filter = filter
	case ChannelBlue:
		c.settings.Blue.Filter = filter
	default:
		return fmt.Errorf("control: no channel %d", channel)
	}
	return nil
}

// UpdateActivations regenerates the compute program from the current
// activations, hands it to the simulation and requests a restart.
func (c *Controller) UpdateActivations() error {
	acts := c.settings.Activations()
	wgsl, err := kernel.GenerateAutomaton(acts[0], acts[1], acts[2], c.tile)
	if err != nil {
		return fmt.Errorf("control: generate program: %w", err)
	}

	if c.shaderPath != "" {
		slogger().Info("writing program", "path", c.shaderPath)
		if err := os.MkdirAll(filepath.Dir(c.shaderPath), 0o755); err == nil {
			if werr := os.WriteFile(c.shaderPath, []byte(wgsl), 0o644); werr != nil {
				slogger().Error("program export failed", "error", werr)
			}
		}
	}

	c.sim.SetProgramSource(wgsl)
	c.reinit.Post()
	return nil
}

// UpdateFilters uploads the current filters to the simulation. No
// restart; filters apply to the running program.
func (c *Controller) UpdateFilters() {
	slogger().Info("updating filter uniforms")
	c.sim.SetFilters(c.settings.Filters())
}

// Reinitialize requests a restart with the current program.
func (c *Controller) Reinitialize() {
	slogger().Info("restart requested")
	c.reinit.Post()
}

// LoadSettings re-reads settings from disk and pushes them into the
// simulation.
func (c *Controller) LoadSettings() error {
	s := ReadSettings(c.settingsPath)
	if err := s.Validate(); err != nil {
		return err
	}
	c.settings = s
	if err := c.UpdateActivations(); err != nil {
		return err
	}
	c.UpdateFilters()
	return nil
}

// SaveSettings persists the live settings.
func (c *Controller) SaveSettings() error {
	return WriteSettings(c.settingsPath, c.settings)
}

// SaveFilterPreset adds the named filter to the library and persists it.
func (c *Controller) SaveFilterPreset(name string, filter [9]float32) error {
	c.presets.AddFilter(name, filter)
	return WritePresets(c.presetsPath, c.presets)
}

// SaveActivationPreset adds the named activation to the library and
// persists it.
func (c *Controller) SaveActivationPreset(name, source string) error {
	if _, err := kernel.CompileActivation(source); err != nil {
		return err
	}
	c.presets.AddActivation(name, source)
	return WritePresets(c.presetsPath, c.presets)
}

// ApplyFilterPreset sets all three channels to a preset filter and
// uploads it.
func (c *Controller) ApplyFilterPreset(name string) error {
	filter, ok := c.presets.FindFilter(name)
	if !ok {
		return fmt.Errorf("control: no filter preset %q", name)
	}
	c.settings.Red.Filter = filter
	c.settings.Green.Filter = filter
	c.settings.Blue.Filter = filter
	c.UpdateFilters()
	return nil
}

// ApplyActivationPreset sets all three channels to a preset activation
// and rebuilds the program.
func (c *Controller) ApplyActivationPreset(name string) error {
	source, ok := c.presets.FindActivation(name)
	if !ok {
		return fmt.Errorf("control: no activation preset %q", name)
	}
	c.settings.Red.Activation = source
	c.settings.Green.Activation = source
	c.settings.Blue.Activation = source
	return c.UpdateActivations()
}
