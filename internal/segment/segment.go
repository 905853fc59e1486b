// Package segment runs the external graph-based segmentation executable.
//
// The executable is invoked as
//
//	segment <sigma> <k> <min_size> <edges.ppm> <segmented.ppm>
//
// and is expected to write a colored PPM where each color labels one segment.
// Any output on stderr, a non-zero exit, a missing output file or a timeout
// is a Failure.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds one segmentation run.
const DefaultTimeout = 10 * time.Minute

// ErrNotFound is wrapped by Failure when the executable does not exist.
var ErrNotFound = errors.New("segmentation executable not found")

// ErrTimeout is wrapped by Failure when the run exceeds its timeout.
var ErrTimeout = errors.New("segmentation timed out")

// Failure is returned for every unsuccessful segmentation run.
type Failure struct {
	Binary string
	Stderr string
	Err    error
}

func (e *Failure) Error() string {
	msg := fmt.Sprintf("segment: %s failed", e.Binary)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *Failure) Unwrap() error { return e.Err }

// Params are the segmentation parameters passed on the command line.
type Params struct {
	Sigma          float64
	K              int
	MinSegmentSize int
}

// Args returns the positional arguments for one invocation.
func (p Params) Args(edgesPath, outPath string) []string {
	return []string{
		strconv.FormatFloat(p.Sigma, 'g', -1, 64),
		strconv.Itoa(p.K),
		strconv.Itoa(p.MinSegmentSize),
		edgesPath,
		outPath,
	}
}

// Runner invokes the segmentation executable.
type Runner struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Check verifies that the executable exists, resolving bare names on PATH.
func (r *Runner) Check() error {
	if r.Binary == "" {
		return &Failure{Binary: r.Binary, Err: ErrNotFound}
	}
	if strings.ContainsRune(r.Binary, os.PathSeparator) {
		info, err := os.Stat(r.Binary)
		if err != nil || info.IsDir() {
			return &Failure{Binary: r.Binary, Err: ErrNotFound}
		}
		return nil
	}
	if _, err := exec.LookPath(r.Binary); err != nil {
		return &Failure{Binary: r.Binary, Err: ErrNotFound}
	}
	return nil
}

// Run segments edgesPath into outPath. Stdout is logged at debug level.
func (r *Runner) Run(ctx context.Context, p Params, edgesPath, outPath string) error {
	if err := r.Check(); err != nil {
		return err
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.Binary, p.Args(edgesPath, outPath)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	// Cancellation by the caller is not a segmentation failure.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return &Failure{Binary: r.Binary, Stderr: stderr.String(), Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	}
	if err != nil {
		return &Failure{Binary: r.Binary, Stderr: stderr.String(), Err: err}
	}
	if stderr.Len() > 0 {
		return &Failure{Binary: r.Binary, Stderr: stderr.String()}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &Failure{Binary: r.Binary, Err: fmt.Errorf("no output: %w", err)}
	}

	logger.Debug("segmentation finished",
		"elapsed", elapsed.Round(time.Millisecond),
		"stdout", strings.TrimSpace(stdout.String()))
	return nil
}
