package sim

import (
	"errors"
	"fmt"

	"github.com/Rustcosky/nca-playground/kernel"
)

// Default grid dimensions. Sized for a full HD window at display scale 1.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// ErrGridTileMismatch is returned when the grid does not divide evenly
// into dispatch tiles.
var ErrGridTileMismatch = errors.New("sim: grid dimensions must be divisible by the tile size")

// Config describes the simulation grid.
type Config struct {
	// Width and Height are the grid dimensions in cells.
	Width  int
	Height int

	// Tile is the workgroup edge. Each dispatch covers Width/Tile by
	// Height/Tile workgroups.
	Tile int
}

// DefaultConfig returns the full HD grid.
func DefaultConfig() Config {
	return Config{Width: DefaultWidth, Height: DefaultHeight, Tile: kernel.DefaultTileSize}
}

// Validate checks the grid dimensions.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("sim: grid dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Tile <= 0 {
		return fmt.Errorf("sim: tile size must be positive, got %d", c.Tile)
	}
	if c.Width%c.Tile != 0 || c.Height%c.Tile != 0 {
		return fmt.Errorf("%w: %dx%d with tile %d", ErrGridTileMismatch, c.Width, c.Height, c.Tile)
	}
	return nil
}

// Workgroups returns the dispatch size in workgroups.
func (c Config) Workgroups() (x, y uint32) {
	return uint32(c.Width / c.Tile), uint32(c.Height / c.Tile)
}

// Cells returns the total cell count.
func (c Config) Cells() int { return c.Width * c.Height }
