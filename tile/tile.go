// Package tile splits an image tensor into uniform, overlapping tiles for
// fixed-shape inference and stitches the scaled results back together,
// cross-fading the overlap bands so seams are invisible.
package tile

import (
	"fmt"

	"go_upscaler/tensor"
)

// Config controls the tile grid geometry.
type Config struct {
	// TileSize is the tile edge in source pixels. Every tile produced by
	// Split has exactly this shape; edge tiles are padded by edge
	// replication, never shrunk.
	TileSize int

	// Overlap is the number of source pixels shared between adjacent
	// tiles. The stitch cross-fade happens across this band. Must be
	// at most TileSize/2 so no pixel is covered by more than two tiles
	// per axis.
	Overlap int
}

// ConfigError reports tile parameters the model cannot accept. It is
// raised before any inference runs.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "tile config: " + e.Message
}

// Validate checks the grid geometry on its own.
func (c Config) Validate() error {
	if c.TileSize <= 0 {
		return &ConfigError{Message: fmt.Sprintf("tile size must be positive, got %d", c.TileSize)}
	}
	if c.Overlap < 0 {
		return &ConfigError{Message: fmt.Sprintf("overlap must not be negative, got %d", c.Overlap)}
	}
	if c.Overlap*2 > c.TileSize {
		return &ConfigError{Message: fmt.Sprintf("overlap %d exceeds half the tile size %d", c.Overlap, c.TileSize)}
	}
	return nil
}

// ValidateForModel checks the geometry against a model's constraints:
// the tile edge must not exceed maxTileEdge and must be a multiple of the
// model's window size.
func (c Config) ValidateForModel(maxTileEdge, windowSize int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if maxTileEdge > 0 && c.TileSize > maxTileEdge {
		return &ConfigError{Message: fmt.Sprintf(
			"tile size %d exceeds the model's maximum input edge %d", c.TileSize, maxTileEdge)}
	}
	if windowSize > 1 && c.TileSize%windowSize != 0 {
		return &ConfigError{Message: fmt.Sprintf(
			"tile size %d is not a multiple of the model window size %d", c.TileSize, windowSize)}
	}
	return nil
}

// Tile is one grid cell: the origin in source coordinates plus a uniform
// TileSize×TileSize pixel tensor. Out-of-image regions are filled by
// replicating the nearest edge pixel.
type Tile struct {
	// X, Y locate the tile's top-left corner in the source image.
	X, Y int

	// Data is the tile's pixel content. After inference it holds the
	// scaled result; Stitch infers nothing from it beyond its values.
	Data tensor.Tensor
}

// Split cuts src into overlapping tiles, ordered left to right then top to
// bottom. Tile origins advance by TileSize-Overlap; the trailing tile on
// each axis may extend past the image and is padded by edge replication.
// An image no larger than TileSize yields a single tile.
func Split(src tensor.Tensor, cfg Config) ([]Tile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	xs := origins(src.Width, cfg.TileSize, cfg.Overlap)
	ys := origins(src.Height, cfg.TileSize, cfg.Overlap)

	tiles := make([]Tile, 0, len(xs)*len(ys))
	for _, y0 := range ys {
		for _, x0 := range xs {
			tiles = append(tiles, cut(src, x0, y0, cfg.TileSize))
		}
	}
	return tiles, nil
}

// origins returns tile start offsets along one axis. The step is
// tileSize-overlap; generation stops once a tile reaches the image edge,
// so exactly the trailing tile may need padding.
func origins(dim, tileSize, overlap int) []int {
	step := tileSize - overlap
	out := []int{0}
	for x := 0; x+tileSize < dim; {
		x += step
		out = append(out, x)
	}
	return out
}

// cut copies a tileSize square starting at (x0, y0), replicating the last
// row/column for regions past the image edge.
func cut(src tensor.Tensor, x0, y0, tileSize int) Tile {
	data := tensor.New(tileSize, tileSize)
	for c := 0; c < tensor.Channels; c++ {
		for y := 0; y < tileSize; y++ {
			sy := y0 + y
			if sy >= src.Height {
				sy = src.Height - 1
			}
			for x := 0; x < tileSize; x++ {
				sx := x0 + x
				if sx >= src.Width {
					sx = src.Width - 1
				}
				data.Set(c, x, y, src.At(c, sx, sy))
			}
		}
	}
	return Tile{X: x0, Y: y0, Data: data}
}

// Stitch reassembles scaled tiles into a tensor of exactly
// origW*scale × origH*scale pixels. Each tile lands at origin*scale;
// overlap bands blend with a linear cross-fade and padding added by Split
// falls outside the output bounds and is discarded. Tiles may arrive in
// any order: placement is keyed entirely by each tile's origin.
func Stitch(tiles []Tile, cfg Config, origW, origH, scale int) (tensor.Tensor, error) {
	if err := cfg.Validate(); err != nil {
		return tensor.Tensor{}, err
	}
	if scale < 1 {
		return tensor.Tensor{}, fmt.Errorf("scale factor must be >= 1, got %d", scale)
	}
	if origW <= 0 || origH <= 0 {
		return tensor.Tensor{}, fmt.Errorf("invalid source dimensions %dx%d", origW, origH)
	}

	ts := cfg.TileSize * scale
	ov := cfg.Overlap * scale
	outW, outH := origW*scale, origH*scale

	acc := make([]float32, tensor.Channels*outH*outW)
	wsum := make([]float32, outH*outW)

	for _, t := range tiles {
		if t.Data.Width != ts || t.Data.Height != ts {
			return tensor.Tensor{}, fmt.Errorf(
				"tile at (%d,%d): got %dx%d, want %dx%d for scale %d",
				t.X, t.Y, t.Data.Width, t.Data.Height, ts, ts, scale)
		}

		wx := rampWeights(ts, ov, t.X > 0, t.X+cfg.TileSize < origW)
		wy := rampWeights(ts, ov, t.Y > 0, t.Y+cfg.TileSize < origH)

		ox0, oy0 := t.X*scale, t.Y*scale
		for y := 0; y < ts; y++ {
			oy := oy0 + y
			if oy >= outH {
				break
			}
			for x := 0; x < ts; x++ {
				ox := ox0 + x
				if ox >= outW {
					break
				}
				w := wx[x] * wy[y]
				for c := 0; c < tensor.Channels; c++ {
					acc[(c*outH+oy)*outW+ox] += w * t.Data.At(c, x, y)
				}
				wsum[oy*outW+ox] += w
			}
		}
	}

	out := tensor.New(outW, outH)
	for i, ws := range wsum {
		if ws == 0 {
			return tensor.Tensor{}, fmt.Errorf("stitch left uncovered pixels; tile set is incomplete")
		}
		for c := 0; c < tensor.Channels; c++ {
			out.Data[c*outH*outW+i] = acc[c*outH*outW+i] / ws
		}
	}
	return out, nil
}

// rampWeights builds the per-axis blend profile for one tile: a 0→1 ramp
// across the leading overlap band when a neighbor precedes the tile, a
// 1→0 ramp across the trailing band when one follows, and 1 elsewhere.
// Opposing ramps of adjacent tiles sum to 1 at every pixel.
func rampWeights(ts, ov int, hasBefore, hasAfter bool) []float32 {
	w := make([]float32, ts)
	for i := range w {
		w[i] = 1
	}
	if ov == 0 {
		return w
	}
	if hasBefore {
		for i := 0; i < ov; i++ {
			w[i] = (float32(i) + 0.5) / float32(ov)
		}
	}
	if hasAfter {
		for i := 0; i < ov; i++ {
			w[ts-1-i] = (float32(i) + 0.5) / float32(ov)
		}
	}
	return w
}
