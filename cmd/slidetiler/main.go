// Command slidetiler splits a whole-slide image into tiles and keeps the
// ones that contain tissue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"slidetiler/internal/background"
	"slidetiler/internal/config"
	"slidetiler/internal/method"
	"slidetiler/internal/pipeline"
	"slidetiler/internal/segment"
	"slidetiler/internal/slide"
	"slidetiler/internal/version"
)

// Exit codes by error kind.
const (
	exitOther        = 1
	exitConfig       = 2
	exitUnreadable   = 3
	exitSegmentation = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("slidetiler", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file; flags given explicitly take precedence")
	writeConfig := fs.String("write-config", "", "write the effective configuration to this file and exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	cfg := config.Default()
	config.Bind(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: slidetiler [flags] <input_image>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return exitConfig
		}
		if err := config.Override(loaded, fs); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid flag: %v\n", err)
			return exitConfig
		}
		cfg = loaded
	}
	if fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			return exitOther
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		return 0
	}

	if cfg.Input == "" {
		fs.Usage()
		return exitConfig
	}

	logger := newLogger(cfg.Info)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := pipeline.Run(ctx, cfg, pipeline.Options{Logger: logger})
	if err != nil {
		logger.Error("run failed", "error", err)
		return exitCode(err)
	}

	if cfg.Info != config.InfoSilent {
		printSummary(rep)
	}
	return 0
}

func newLogger(info string) *slog.Logger {
	level := slog.LevelInfo
	switch info {
	case config.InfoVerbose:
		level = slog.LevelDebug
	case config.InfoSilent:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func exitCode(err error) int {
	var (
		ce *config.Error
		ee *background.EmptySampleError
		ue *slide.UnreadableSlideError
		sf *segment.Failure
	)
	switch {
	case errors.As(err, &ce), errors.As(err, &ee):
		return exitConfig
	case errors.As(err, &ue):
		return exitUnreadable
	case errors.As(err, &sf):
		return exitSegmentation
	default:
		return exitOther
	}
}

func printSummary(rep *pipeline.Report) {
	m := rep.Manifest
	fmt.Printf("\nSample:   %s (%dx%d)\n", rep.SampleID, m.Width, m.Height)
	fmt.Printf("Method:   %s\n", method.Describe(rep.Method))
	fmt.Printf("Output:   %s\n", rep.Dir)

	switch {
	case rep.TestImage != "":
		fmt.Printf("Test image: %s\n", rep.TestImage)
	case rep.Sample != nil:
		fmt.Printf("Sampled %d patches at level %d (%d px), wrote %d\n",
			len(rep.Sample.Origins), rep.Sample.Level, rep.Sample.LevelSize, rep.Sample.Written)
	case rep.Selection != nil:
		s := rep.Selection
		if rep.Background != nil {
			fmt.Printf("Background: %s (%d candidate colors)\n", rep.Background.Canonical, len(rep.Background.Candidates))
		}
		fmt.Printf("Grid:     %dx%d tiles\n", s.Bound.Cols, s.Bound.Rows)
		if s.Mismatch != nil {
			fmt.Printf("Warning:  %v\n", s.Mismatch)
		}
		fmt.Printf("Selected %d of %d tiles, wrote %d\n", s.Kept, len(s.Records), s.Written)
	}
	fmt.Printf("Elapsed:  %s\n", rep.Elapsed.Round(time.Millisecond))
}
