// Package method defines the tissue-mask strategies as a closed set of types.
//
// Each strategy carries only the parameters it needs. Consumers switch on the
// concrete type:
//
//	switch m := cfg.MaskMethod().(type) {
//	case method.Graph:
//		// m.Sigma, m.K, m.MinSegmentSize
//	case method.Otsu, method.Adaptive:
//	case method.Random:
//		// m.Patches
//	}
package method

import "fmt"

// Method is one of Graph, Otsu, Adaptive or Random.
type Method interface {
	// Name returns the configuration keyword of the strategy.
	Name() string
	isMethod()
}

// Graph segments an edge image with the external graph-based segmenter.
type Graph struct {
	Sigma          float64 // smoothing applied by the segmenter
	K              int     // merge threshold
	MinSegmentSize int     // post-processing minimum segment area

	// TestMode renders the raw segmentation with a tile grid and stops.
	TestMode bool
}

// Otsu thresholds a blurred grayscale downsample with a global Otsu level.
type Otsu struct{}

// Adaptive thresholds a grayscale downsample with a local Gaussian window.
type Adaptive struct{}

// Random samples patches without building a mask.
type Random struct {
	Patches int
	Seed    uint64
}

func (Graph) Name() string    { return "graph" }
func (Otsu) Name() string     { return "otsu" }
func (Adaptive) Name() string { return "adaptive" }
func (Random) Name() string   { return "randomsampling" }

func (Graph) isMethod()    {}
func (Otsu) isMethod()     {}
func (Adaptive) isMethod() {}
func (Random) isMethod()   {}

// Names lists the accepted strategy keywords.
func Names() []string {
	return []string{"graph", "otsu", "adaptive", "randomsampling"}
}

// Thresholded reports whether m produces a binary threshold mask with a
// fixed white background.
func Thresholded(m Method) bool {
	switch m.(type) {
	case Otsu, Adaptive:
		return true
	}
	return false
}

// Describe returns a one-line summary of the strategy parameters.
func Describe(m Method) string {
	switch m := m.(type) {
	case Graph:
		return fmt.Sprintf("graph sigma=%g k=%d min=%d", m.Sigma, m.K, m.MinSegmentSize)
	case Random:
		return fmt.Sprintf("randomsampling n=%d", m.Patches)
	default:
		return m.Name()
	}
}
