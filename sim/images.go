package sim

import (
	"fmt"

	"github.com/Rustcosky/nca-playground/gpucore"
)

// DoubleImage is the ping-pong texture pair the simulation alternates
// between. Index 0 is texture A, index 1 is texture B.
type DoubleImage struct {
	textures [2]gpucore.TextureID
	width    int
	height   int
}

// NewDoubleImage creates both textures and fills them with opaque black,
// the state every run starts from before the seed pass.
func NewDoubleImage(adapter gpucore.Adapter, cfg Config) (*DoubleImage, error) {
	d := &DoubleImage{width: cfg.Width, height: cfg.Height}

	fill := make([]byte, cfg.Width*cfg.Height*4)
	for i := 3; i < len(fill); i += 4 {
		fill[i] = 255
	}

	for i := range d.textures {
		tex, err := adapter.CreateTexture(cfg.Width, cfg.Height, gpucore.TextureFormatRGBA8Unorm)
		if err != nil {
			for j := 0; j < i; j++ {
				adapter.DestroyTexture(d.textures[j])
			}
			return nil, fmt.Errorf("sim: create image %d: %w", i, err)
		}
		adapter.WriteTexture(tex, fill)
		d.textures[i] = tex
	}
	return d, nil
}

// Texture returns the texture at the given slot (0 or 1).
func (d *DoubleImage) Texture(i int) gpucore.TextureID {
	return d.textures[i]
}

// Size returns the grid dimensions.
func (d *DoubleImage) Size() (w, h int) {
	return d.width, d.height
}

// Release destroys both textures.
func (d *DoubleImage) Release(adapter gpucore.Adapter) {
	for i, tex := range d.textures {
		if tex != gpucore.InvalidID {
			adapter.DestroyTexture(tex)
			d.textures[i] = gpucore.InvalidID
		}
	}
}
