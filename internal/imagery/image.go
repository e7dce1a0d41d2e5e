// Package imagery turns uploaded event posters into structured event
// candidates: resize, OCR, LLM extraction, then the same normalization
// the scrape pipeline applies.
package imagery

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/citylore/server/internal/domain/ids"
)

const (
	maxImageWidth = 1200
	jpegQuality   = 60
)

// ProcessedImage is a stored, normalized upload.
type ProcessedImage struct {
	Path  string
	Bytes []byte
}

// ProcessImage downscales data to at most maxImageWidth wide, re-encodes
// as JPEG, and persists it under uploadsDir with a generated name.
func ProcessImage(data []byte, uploadsDir string) (*ProcessedImage, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > maxImageWidth {
		height = height * maxImageWidth / width
		width = maxImageWidth
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generating image name: %w", err)
	}
	name := id + ".jpg"
	path := filepath.Join(uploadsDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("writing image %s: %w", path, err)
	}

	return &ProcessedImage{Path: path, Bytes: buf.Bytes()}, nil
}
