package config

import (
	"flag"
	"fmt"
	"strings"

	"slidetiler/internal/method"
)

// Bind registers one flag per field on fs, writing into c. Flag defaults
// are the current values of c.
func Bind(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Output, "output", c.Output, "output directory")
	fs.StringVar(&c.Method, "method", c.Method, "mask strategy: "+strings.Join(method.Names(), ", "))
	fs.IntVar(&c.PatchSize, "patch-size", c.PatchSize, "edge of the produced patches in pixels")
	fs.Float64Var(&c.ContentThreshold, "content-threshold", c.ContentThreshold, "minimum share of a patch not covered by background [0-1]")

	fs.Float64Var(&c.BorderPercentage, "percentage-bc", c.BorderPercentage, "share of width and height used as border or corner [0-100]")
	fs.StringVar(&c.Borders, "borders", c.Borders, "borders used for background: left, bottom, right, top")
	fs.StringVar(&c.Corners, "corners", c.Corners, "corners used for background: top-left, bottom-left, bottom-right, top-right")

	fs.Float64Var(&c.Sigma, "sigma", c.Sigma, "graph segmentation smoothing")
	fs.IntVar(&c.K, "k-const", c.K, "graph segmentation merge threshold")
	fs.IntVar(&c.MinSegmentSize, "minimum-segmentsize", c.MinSegmentSize, "graph segmentation minimum segment size")
	fs.StringVar(&c.SegmentBinary, "segment-binary", c.SegmentBinary, "graph segmentation executable")
	fs.DurationVar(&c.SegmentTimeout, "segment-timeout", c.SegmentTimeout, "graph segmentation time limit")
	fs.BoolVar(&c.TestMode, "test-mode", c.TestMode, "render the graph segmentation with the tile grid and stop")

	fs.IntVar(&c.OutputDownsample, "output-downsample", c.OutputDownsample, "downsampling of the output patches (power of 2)")
	fs.IntVar(&c.MaskDownsample, "mask-downsample", c.MaskDownsample, "downsampling of the mask (power of 2)")
	fs.IntVar(&c.TilecrossDownsample, "tilecross-downsample", c.TilecrossDownsample, "downsampling of the tile-crossed image (power of 2)")
	fs.IntVar(&c.TestDownsample, "test-downsample", c.TestDownsample, "downsampling of the test mode image (power of 2)")

	fs.IntVar(&c.NPatches, "npatches", c.NPatches, "number of patches for random sampling")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random sampling seed")

	fs.BoolVar(&c.SaveEdges, "save-edges", c.SaveEdges, "keep the edge image")
	fs.BoolVar(&c.SaveMask, "save-mask", c.SaveMask, "keep the segmented or threshold mask")
	fs.BoolVar(&c.SavePatches, "save-patches", c.SavePatches, "save the selected patches")
	fs.BoolVar(&c.SaveBlank, "save-blank", c.SaveBlank, "also save patches classified as background")
	fs.BoolVar(&c.SaveNonSquare, "save-nonsquare", c.SaveNonSquare, "keep non-square edge patches")
	fs.BoolVar(&c.SaveTilecrossed, "save-tilecrossed-image", c.SaveTilecrossed, "save a thumbnail with the selected patches crossed")
	fs.StringVar(&c.Format, "format", c.Format, "image format: png or jpg")
	fs.StringVar(&c.Info, "info", c.Info, "logging: default, verbose or silent")
}

// Override copies every flag set on parsed onto c. Values set in a config
// file survive unless the same flag was given explicitly.
func Override(c *Config, parsed *flag.FlagSet) error {
	target := flag.NewFlagSet("override", flag.ContinueOnError)
	Bind(target, c)
	var err error
	parsed.Visit(func(f *flag.Flag) {
		if err != nil || target.Lookup(f.Name) == nil {
			return
		}
		if e := target.Set(f.Name, f.Value.String()); e != nil {
			err = &Error{Field: f.Name, Reason: e.Error(), Err: e}
		}
	})
	if err != nil {
		return fmt.Errorf("config: override: %w", err)
	}
	return nil
}
