// Package pipeline runs one slide through mask building, background
// identification and tile selection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"slidetiler/internal/background"
	"slidetiler/internal/config"
	"slidetiler/internal/method"
	"slidetiler/internal/output"
	"slidetiler/internal/overview"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"
	"slidetiler/internal/tiler"
	"slidetiler/internal/tissue"
	"slidetiler/internal/version"
	"slidetiler/pkg/colorutil"
)

// OpenFunc opens the input slide.
type OpenFunc func(path string) (slide.Reader, error)

// Options are the collaborators of a run.
type Options struct {
	Logger *slog.Logger
	Open   OpenFunc // defaults to slide.Open
}

// Report summarizes a finished run.
type Report struct {
	SampleID string
	Dir      string
	Method   method.Method

	Background *background.Result // graph only
	Selection  *tiler.Result      // mask strategies
	Sample     *tiler.SampleResult
	TestImage  string

	Manifest *output.Manifest
	Elapsed  time.Duration
}

// Run executes cfg. The configuration is validated before any file is
// touched.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := opts.Open
	if open == nil {
		open = func(path string) (slide.Reader, error) { return slide.Open(path) }
	}

	r, err := open(cfg.Input)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	id := slide.SampleID(cfg.Input)
	dir := output.SampleDir(cfg.Output, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	m := cfg.MaskMethod()
	w0, h0 := r.Dimensions()
	logger.Info("slide opened",
		"sample", id,
		"width", w0,
		"height", h0,
		"levels", r.LevelCount(),
		"method", method.Describe(m))

	man := output.NewManifest(version.Version, id, cfg.Input, m.Name())
	man.Width, man.Height = w0, h0
	man.PatchSize = cfg.PatchSize
	man.OutputDownsample = cfg.OutputDownsample

	rep := &Report{SampleID: id, Dir: dir, Method: m, Manifest: man}
	run := &run{cfg: cfg, logger: logger, r: r, id: id, dir: dir, man: man, manPath: output.ManifestPath(dir)}

	switch m := m.(type) {
	case method.Random:
		rep.Sample, err = run.random(ctx, m)
	default:
		err = run.masked(ctx, m, rep)
	}
	if err != nil {
		return nil, err
	}

	if err := man.Save(run.manPath); err != nil {
		return nil, err
	}
	rep.Elapsed = man.Elapsed()
	logger.Info("run finished", "sample", id, "elapsed", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

type run struct {
	cfg     *config.Config
	logger  *slog.Logger
	r       slide.Reader
	id      string
	dir     string
	man     *output.Manifest
	manPath string
}

func (p *run) options() tiler.Options {
	return tiler.Options{
		PatchSize:        p.cfg.PatchSize,
		OutputDownsample: p.cfg.OutputDownsample,
		MaskDownsample:   float64(p.cfg.MaskDownsample),
		ContentThreshold: p.cfg.ContentThreshold,
		SavePatches:      p.cfg.SavePatches,
		SaveBlank:        p.cfg.SaveBlank,
		SaveNonSquare:    p.cfg.SaveNonSquare,
		SampleID:         p.id,
		Logger:           p.logger,
	}
}

func (p *run) tileWriter() (*output.TileWriter, error) {
	dir := output.TileDir(p.dir, p.id)
	w, err := output.NewTileWriter(dir, p.cfg.Format)
	if err != nil {
		return nil, err
	}
	p.man.SetArtifact(p.manPath, &p.man.Tiles, dir)
	return w, nil
}

func (p *run) random(ctx context.Context, m method.Random) (*tiler.SampleResult, error) {
	var sink tiler.TileSink
	if p.cfg.SavePatches {
		w, err := p.tileWriter()
		if err != nil {
			return nil, err
		}
		sink = w
	}
	res, err := tiler.Sample(ctx, p.r, m, sink, p.options())
	if err != nil {
		return nil, err
	}
	p.man.Visited = len(res.Origins)
	p.man.Kept = len(res.Origins)
	p.man.Written = res.Written
	return res, nil
}

func (p *run) masked(ctx context.Context, m method.Method, rep *Report) error {
	cfg := p.cfg
	topts := tissue.Options{
		MaskDownsample: float64(cfg.MaskDownsample),
		Dir:            p.dir,
		SampleID:       p.id,
		Format:         cfg.Format,
		SaveMask:       cfg.SaveMask,
		Logger:         p.logger,
	}
	if _, ok := m.(method.Graph); ok {
		topts.Runner = &segment.Runner{
			Binary:  cfg.SegmentBinary,
			Timeout: cfg.SegmentTimeout,
			Logger:  p.logger,
		}
		p.logger.Info("segmenting", "binary", cfg.SegmentBinary, "timeout", cfg.SegmentTimeout)
	}

	built, err := tissue.Build(ctx, p.r, m, topts)
	if err != nil {
		return err
	}
	p.man.MaskDownsample = float64(cfg.MaskDownsample)
	p.man.ContentThreshold = cfg.ContentThreshold
	p.man.SetArtifact(p.manPath, &p.man.Mask, built.MaskPath)
	defer p.cleanup(built)

	if g, ok := m.(method.Graph); ok && g.TestMode {
		return p.testImage(built, rep)
	}

	bg := colorutil.WhiteRGB
	if _, ok := m.(method.Graph); ok {
		borders, corners := cfg.Selectors()
		res, err := background.Identify(built.Mask, cfg.BorderPercentage, borders, corners)
		if err != nil {
			return err
		}
		changed := background.Canonicalize(built.Mask, res)
		p.logger.Info("background identified",
			"color", res.Canonical.String(),
			"candidates", len(res.Candidates),
			"relabeled", changed)
		bg = res.Canonical
		rep.Background = &res
	}
	p.man.Background = bg.String()

	dz, err := slide.NewDeepZoom(p.r, cfg.PatchSize)
	if err != nil {
		return err
	}
	level, err := dz.LevelForDownsample(cfg.OutputDownsample)
	if err != nil {
		return err
	}

	sel := &tiler.Selector{
		Source:     dz,
		Level:      level,
		Mask:       built.Mask,
		Background: bg,
		Options:    p.options(),
	}
	if cfg.SavePatches {
		w, err := p.tileWriter()
		if err != nil {
			return err
		}
		sel.Sink = w
	}

	var canvas *overview.Canvas
	if cfg.SaveTilecrossed {
		small, _, err := slide.DownsampledImage(p.r, float64(cfg.TilecrossDownsample))
		if err != nil {
			return err
		}
		pitch := overview.Pitch(cfg.PatchSize, cfg.OutputDownsample, float64(cfg.TilecrossDownsample))
		canvas, err = overview.NewCanvas(small, pitch)
		if err != nil {
			return err
		}
		defer canvas.Close()
		sel.Marker = canvas
	}

	res, err := sel.Run(ctx)
	if err != nil {
		return err
	}
	rep.Selection = res

	metaPath := output.MetadataPath(p.dir)
	if err := output.WriteMetadata(metaPath, res.Records); err != nil {
		return err
	}
	p.man.SetArtifact(p.manPath, &p.man.Metadata, metaPath)

	if canvas != nil {
		path := filepath.Join(p.dir, "tilecrossed_"+p.id+"."+cfg.Format)
		if err := canvas.Save(path); err != nil {
			return err
		}
		p.man.SetArtifact(p.manPath, &p.man.Overview, path)
	}

	p.man.Visited = len(res.Records)
	p.man.Kept = res.Kept
	p.man.Written = res.Written
	if res.Mismatch != nil {
		p.man.Mismatch = res.Mismatch.Error()
	}
	return nil
}

func (p *run) testImage(built *tissue.Result, rep *Report) error {
	cfg := p.cfg
	w0, h0 := p.r.Dimensions()
	path := filepath.Join(p.dir, "test_"+p.id+"."+cfg.Format)
	err := overview.RenderTestImage(built.Mask,
		w0/cfg.TestDownsample, h0/cfg.TestDownsample,
		cfg.PatchSize, cfg.BorderPercentage, path)
	if err != nil {
		return err
	}
	p.logger.Info("test image written", "path", path)
	rep.TestImage = path
	p.man.SetArtifact(p.manPath, &p.man.TestImage, path)
	return nil
}

// cleanup removes the intermediate segmentation files unless asked to keep
// them.
func (p *run) cleanup(built *tissue.Result) {
	remove := func(path string, keep bool, dst *string) {
		if path == "" {
			return
		}
		if keep {
			p.man.SetArtifact(p.manPath, dst, path)
			return
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("cleanup failed", "path", path, "error", err)
		}
	}
	remove(built.EdgesPath, p.cfg.SaveEdges, &p.man.EdgesImage)
	remove(built.SegmentedPath, p.cfg.SaveMask, &p.man.Segmented)
}
