package pipeline

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	_ "golang.org/x/image/webp" // decode only; saved as png
)

// DecodeError means an input file could not be read as an image.
type DecodeError struct {
	Path  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// EncodeError means a result could not be written.
type EncodeError struct {
	Path  string
	Cause error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Cause)
}

func (e *EncodeError) Unwrap() error { return e.Cause }

// supportedInputExts are the formats accepted for processing.
var supportedInputExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
}

// IsSupportedInput reports whether the path has a processable extension.
func IsSupportedInput(path string) bool {
	return supportedInputExts[strings.ToLower(filepath.Ext(path))]
}

// decodeImage reads and decodes an input file, returning the image and the
// detected format name ("png", "jpeg", ...).
func decodeImage(path string) (image.Image, string, error) {
	if !IsSupportedInput(path) {
		return nil, "", &DecodeError{Path: path, Cause: fmt.Errorf("unsupported file extension %q", filepath.Ext(path))}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", &DecodeError{Path: path, Cause: err}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", &DecodeError{Path: path, Cause: err}
	}
	return img, format, nil
}

// encodeExt maps a format to the extension results are written with.
// webp has no encoder in the Go ecosystem's maintained packages, so webp
// inputs come back as png.
func encodeExt(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "bmp":
		return ".bmp"
	case "tiff":
		return ".tiff"
	default:
		return ".png"
	}
}

// encodeImage writes img to path using the encoder matching the extension
// chosen by encodeExt.
func encodeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return &EncodeError{Path: path, Cause: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tiff", ".tif":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		_ = os.Remove(path)
		return &EncodeError{Path: path, Cause: err}
	}
	if err := f.Close(); err != nil {
		return &EncodeError{Path: path, Cause: err}
	}
	return nil
}

// clampLongEdge shrinks img so its longer edge is at most maxEdge,
// preserving aspect ratio. maxEdge <= 0 disables the clamp.
func clampLongEdge(img image.Image, maxEdge int) image.Image {
	if maxEdge <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxEdge && b.Dy() <= maxEdge {
		return img
	}
	return imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
}
