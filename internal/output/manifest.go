package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFile is the run summary inside a sample directory.
const ManifestFile = "run.json"

// Manifest records what one run did and where it put its artifacts.
type Manifest struct {
	Version  string    `json:"version"`
	SampleID string    `json:"sample_id"`
	Input    string    `json:"input"`
	Method   string    `json:"method"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Width  int `json:"width"`
	Height int `json:"height"`

	PatchSize        int     `json:"patch_size"`
	OutputDownsample int     `json:"output_downsample"`
	MaskDownsample   float64 `json:"mask_downsample,omitempty"`
	ContentThreshold float64 `json:"content_threshold,omitempty"`

	Background string `json:"background,omitempty"`
	Visited    int    `json:"visited"`
	Kept       int    `json:"kept"`
	Written    int    `json:"written"`
	Mismatch   string `json:"grid_mismatch,omitempty"`

	// Artifact paths, relative to the manifest.
	Tiles      string `json:"tiles,omitempty"`
	Metadata   string `json:"metadata,omitempty"`
	Overview   string `json:"overview,omitempty"`
	Mask       string `json:"mask,omitempty"`
	TestImage  string `json:"test_image,omitempty"`
	EdgesImage string `json:"edges,omitempty"`
	Segmented  string `json:"segmented,omitempty"`
}

// ManifestPath returns the manifest path inside a sample directory.
func ManifestPath(sampleDir string) string {
	return filepath.Join(sampleDir, ManifestFile)
}

// NewManifest starts a manifest for a sample.
func NewManifest(version, sampleID, input, method string) *Manifest {
	return &Manifest{
		Version:  version,
		SampleID: sampleID,
		Input:    input,
		Method:   method,
		Started:  time.Now(),
	}
}

// Elapsed returns the run duration.
func (m *Manifest) Elapsed() time.Duration {
	if m.Finished.IsZero() {
		return time.Since(m.Started)
	}
	return m.Finished.Sub(m.Started)
}

// SetArtifact stores path relative to the manifest directory in dst.
func (m *Manifest) SetArtifact(manifestPath string, dst *string, path string) {
	if path == "" {
		*dst = ""
		return
	}
	rel, err := filepath.Rel(filepath.Dir(manifestPath), path)
	if err != nil {
		*dst = path
		return
	}
	*dst = rel
}

// Resolve returns the absolute path of an artifact stored in the manifest.
func (m *Manifest) Resolve(manifestPath, artifact string) string {
	if artifact == "" || filepath.IsAbs(artifact) {
		return artifact
	}
	return filepath.Join(filepath.Dir(manifestPath), artifact)
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("output: manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save finishes the manifest and writes it to path.
func (m *Manifest) Save(path string) error {
	if m.Finished.IsZero() {
		m.Finished = time.Now()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("output: manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
