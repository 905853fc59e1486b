package tiler

import (
	"context"
	"fmt"
	"image"
	"math"

	"slidetiler/internal/method"
	"slidetiler/internal/slide"

	"github.com/disintegration/imaging"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// maxSampleRounds bounds the draws spent looking for non-overlapping origins.
const maxSampleRounds = 100

// SampleResult describes a random sampling run.
type SampleResult struct {
	Level     int           // slide level patches were read from
	LevelSize int           // patch edge at that level
	Origins   []image.Point // level-0 top-left corners, in write order
	Names     []string
	Written   int
}

// Sample extracts m.Patches non-overlapping patches at uniformly random
// positions. No content thresholding is done. Patches are written to sink
// when it is non-nil.
func Sample(ctx context.Context, r slide.Reader, m method.Random, sink TileSink, opts Options) (*SampleResult, error) {
	logger := opts.logger()
	if m.Patches <= 0 {
		return nil, fmt.Errorf("tiler: random sampling needs a positive patch count, got %d", m.Patches)
	}

	d := float64(opts.OutputDownsample)
	level, err := slide.BestLevelForDownsample(r, d)
	if err != nil {
		return nil, err
	}
	lds := r.LevelDownsample(level)
	lps := int(round1(d/lds) * float64(opts.PatchSize))
	lw, lh := r.LevelDimensions(level)
	bx, by := lw-lps, lh-lps
	if lps <= 0 || bx <= 0 || by <= 0 {
		return nil, fmt.Errorf("tiler: level %d (%dx%d) too small for %d px patches", level, lw, lh, lps)
	}

	src := rand.NewSource(m.Seed)
	origins, err := drawOrigins(src, m.Patches, bx, by, lps)
	if err != nil {
		return nil, err
	}
	logger.Debug("random origins drawn",
		"level", level,
		"level_patch", lps,
		"boundary", fmt.Sprintf("%dx%d", bx, by),
		"patches", len(origins))

	scale := round1(lds)
	digits := Digits(m.Patches)
	res := &SampleResult{Level: level, LevelSize: lps}
	for k, o := range origins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x0 := int(float64(o.X) * scale)
		y0 := int(float64(o.Y) * scale)
		name := TileName(opts.SampleID, k, digits)
		res.Origins = append(res.Origins, image.Pt(x0, y0))
		res.Names = append(res.Names, name)

		if sink == nil {
			continue
		}
		region, err := r.ReadRegion(x0, y0, level, lps, lps)
		if err != nil {
			return nil, fmt.Errorf("tiler: %s: %w", name, err)
		}
		var patch image.Image = slide.Flatten(region)
		if lps != opts.PatchSize {
			patch = imaging.Resize(patch, opts.PatchSize, opts.PatchSize, imaging.Linear)
		}
		if err := sink.Write(name, patch); err != nil {
			return nil, fmt.Errorf("tiler: %s: %w", name, err)
		}
		res.Written++
	}

	logger.Info("random patches sampled", "patches", len(res.Origins), "written", res.Written)
	return res, nil
}

// drawOrigins picks n level-space origins in [0,bx) x [0,by) whose size x
// size squares do not overlap. Each round draws distinct x and y coordinates
// and keeps the pairs that fit.
func drawOrigins(src rand.Source, n, bx, by, size int) ([]image.Point, error) {
	var picked []image.Point
	for round := 0; round < maxSampleRounds && len(picked) < n; round++ {
		k := min(n-len(picked), bx, by)
		xs := make([]int, k)
		ys := make([]int, k)
		sampleuv.WithoutReplacement(xs, bx, src)
		sampleuv.WithoutReplacement(ys, by, src)
		for i := range xs {
			p := image.Pt(xs[i], ys[i])
			if !overlapsAny(p, picked, size) {
				picked = append(picked, p)
			}
		}
	}
	if len(picked) < n {
		return nil, fmt.Errorf("tiler: placed only %d of %d non-overlapping patches", len(picked), n)
	}
	return picked, nil
}

func overlapsAny(p image.Point, others []image.Point, size int) bool {
	for _, o := range others {
		if abs(p.X-o.X) < size && abs(p.Y-o.Y) < size {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
