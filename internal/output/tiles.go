// Package output persists tiles, the tile selection table and the run
// manifest of a sample.
package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// JPEGQuality is used for jpg tiles and overviews.
const JPEGQuality = 95

// Formats lists the accepted image extensions.
func Formats() []string {
	return []string{"png", "jpg"}
}

// IsFormat reports whether f is an accepted image extension.
func IsFormat(f string) bool {
	for _, ok := range Formats() {
		if strings.EqualFold(f, ok) {
			return true
		}
	}
	return false
}

// SampleDir returns the per-sample output directory.
func SampleDir(outputDir, sampleID string) string {
	return filepath.Join(outputDir, sampleID)
}

// TileDir returns the tile directory inside a sample directory.
func TileDir(sampleDir, sampleID string) string {
	return filepath.Join(sampleDir, sampleID+"_tiles")
}

// TileWriter saves tiles as {Dir}/{name}.{Format}.
type TileWriter struct {
	Dir    string
	Format string
}

// NewTileWriter creates the tile directory.
func NewTileWriter(dir, format string) (*TileWriter, error) {
	if !IsFormat(format) {
		return nil, fmt.Errorf("output: unsupported format %q", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	return &TileWriter{Dir: dir, Format: strings.ToLower(format)}, nil
}

// Path returns the file a tile name is written to.
func (w *TileWriter) Path(name string) string {
	return filepath.Join(w.Dir, name+"."+w.Format)
}

// Write encodes one tile.
func (w *TileWriter) Write(name string, img image.Image) error {
	return SaveImage(img, w.Path(name))
}

// SaveImage encodes img by the extension of path.
func SaveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("output: save %s: %w", path, err)
	}
	return nil
}
