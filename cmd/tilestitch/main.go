// Command tilestitch reassembles the tiles of a sample from its tile
// selection table.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"slidetiler/internal/output"

	"github.com/disintegration/imaging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("tilestitch", flag.ContinueOnError)
	sampleDir := flags.String("dir", "", "sample output directory (contains run.json or tile_selection.tsv)")
	format := flags.String("format", "png", "tile format: png or jpg")
	out := flags.String("out", "", "output image path (default: <dir>/stitched_<sample>.<format>)")
	maxSide := flags.Int("max", 0, "shrink the result so its longest side is at most this many pixels")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *sampleDir == "" {
		fmt.Println("Usage: tilestitch -dir <sample_dir> [-format png|jpg] [-out path] [-max px]")
		return 1
	}
	if !output.IsFormat(*format) {
		fmt.Fprintf(os.Stderr, "Unsupported format %q\n", *format)
		return 2
	}

	loc, err := locate(*sampleDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read run manifest: %v\n", err)
		return 1
	}
	records, err := output.ReadMetadata(loc.metadata)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read tile table: %v\n", err)
		return 1
	}
	fmt.Printf("Loaded %d tile records (%d kept)\n", len(records), output.KeptCount(records))

	res, err := output.Stitch(records, loc.tiles, *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stitching failed: %v\n", err)
		return 1
	}
	b := res.Image.Bounds()
	fmt.Printf("Canvas %dx%d: placed %d tiles, %d not on disk\n", b.Dx(), b.Dy(), res.Placed, res.Missing)

	img := res.Image
	if *maxSide > 0 && max(b.Dx(), b.Dy()) > *maxSide {
		img = imaging.Fit(img, *maxSide, *maxSide, imaging.Lanczos)
		fmt.Printf("Resized to %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy())
	}

	path := *out
	if path == "" {
		path = filepath.Join(*sampleDir, "stitched_"+loc.sampleID+"."+*format)
	}
	if err := output.SaveImage(img, path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
		return 1
	}
	fmt.Printf("Saved %s\n", path)
	return 0
}

// location is where a sample's tile table and tiles live.
type location struct {
	sampleID string
	metadata string
	tiles    string
}

// locate reads run.json when present. Without one, the default layout of a
// sample directory named after its sample is assumed.
func locate(sampleDir string) (location, error) {
	path := output.ManifestPath(sampleDir)
	man, err := output.LoadManifest(path)
	if errors.Is(err, fs.ErrNotExist) {
		id := filepath.Base(filepath.Clean(sampleDir))
		return location{
			sampleID: id,
			metadata: output.MetadataPath(sampleDir),
			tiles:    output.TileDir(sampleDir, id),
		}, nil
	}
	if err != nil {
		return location{}, err
	}

	loc := location{
		sampleID: man.SampleID,
		metadata: man.Resolve(path, man.Metadata),
		tiles:    man.Resolve(path, man.Tiles),
	}
	if loc.metadata == "" {
		loc.metadata = output.MetadataPath(sampleDir)
	}
	if loc.tiles == "" {
		loc.tiles = output.TileDir(sampleDir, man.SampleID)
	}
	return loc, nil
}
