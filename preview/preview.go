// Package preview produces bounded-size before/after thumbnails so a UI can
// show comparison panes without decoding full-resolution results.
package preview

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxEdge is the thumbnail bound used when a Pair is built with
// maxEdge <= 0.
const DefaultMaxEdge = 512

// Pair holds the before/after thumbnails for one processed file.
type Pair struct {
	Before *image.NRGBA
	After  *image.NRGBA
}

// Thumbnail decodes the file at path and scales it to fit within
// maxEdge×maxEdge, preserving aspect ratio. Images already within the bound
// are returned at their native size.
func Thumbnail(path string, maxEdge int) (*image.NRGBA, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preview source: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode preview source %s: %w", path, err)
	}

	b := img.Bounds()
	if b.Dx() <= maxEdge && b.Dy() <= maxEdge {
		return imaging.Clone(img), nil
	}
	return imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos), nil
}

// Load builds the before/after pair for an input file and its result.
func Load(inputPath, outputPath string, maxEdge int) (Pair, error) {
	before, err := Thumbnail(inputPath, maxEdge)
	if err != nil {
		return Pair{}, err
	}
	after, err := Thumbnail(outputPath, maxEdge)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Before: before, After: after}, nil
}
