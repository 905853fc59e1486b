package output

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func sampleRecords() []Record {
	// 3x2 grid, last column 50 px wide, last row 30 px tall.
	var recs []Record
	i := 0
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			w, h := 100, 100
			if col == 2 {
				w = 50
			}
			if row == 1 {
				h = 30
			}
			recs = append(recs, Record{
				Name:   testName(i),
				Width:  w,
				Height: h,
				Keep:   (row+col)%2 == 0,
				Row:    row,
				Column: col,
			})
			i++
		}
	}
	return recs
}

func testName(i int) string {
	return "S_" + string(rune('0'+i))
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	recs := sampleRecords()
	if err := WriteMetadata(path, recs); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	first := strings.SplitN(string(data), "\n", 2)[0]
	if first != "Tile\tWidth\tHeight\tKeep\tRow\tColumn" {
		t.Fatalf("header = %q", first)
	}

	got, err := ReadMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(recs) {
		t.Fatalf("read %d records, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], recs[i])
		}
	}
	if KeptCount(got) != 3 {
		t.Errorf("kept = %d, want 3", KeptCount(got))
	}
}

func TestDecodeMetadataErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "Tile\tWidth\n",
		"bad keep":       "Tile\tWidth\tHeight\tKeep\tRow\tColumn\nA\t1\t1\tyes\t0\t0\n",
		"bad width":      "Tile\tWidth\tHeight\tKeep\tRow\tColumn\nA\tx\t1\t1\t0\t0\n",
	}
	for name, in := range tests {
		if _, err := DecodeMetadata(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEncodeKeepsTraversalOrder(t *testing.T) {
	var buf bytes.Buffer
	recs := sampleRecords()
	if err := EncodeMetadata(&buf, recs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(recs)+1 {
		t.Fatalf("%d lines", len(lines))
	}
	if !strings.HasPrefix(lines[3], "S_2\t50\t100\t1\t0\t2") {
		t.Errorf("line 3 = %q", lines[3])
	}
}

func TestTileWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "S_tiles")
	w, err := NewTileWriter(dir, "jpg")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write("S_00", imaging.New(8, 8, color.White)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "S_00.jpg")); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTileWriter(dir, "gif"); err == nil {
		t.Error("gif should be rejected")
	}
}

func TestStitch(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTileWriter(dir, "png")
	if err != nil {
		t.Fatal(err)
	}
	recs := sampleRecords()
	for _, r := range recs {
		if !r.Keep {
			continue
		}
		if err := w.Write(r.Name, imaging.New(r.Width, r.Height, color.Black)); err != nil {
			t.Fatal(err)
		}
	}

	res, err := Stitch(recs, dir, "png")
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Image.Bounds().Size(); got != image.Pt(250, 130) {
		t.Fatalf("canvas = %v, want 250x130", got)
	}
	if res.Placed != 3 || res.Missing != 3 {
		t.Fatalf("placed %d missing %d", res.Placed, res.Missing)
	}
	// (1,0) was discarded and stays white; (2,0) was kept and is black.
	if c := res.Image.NRGBAAt(150, 50); c.R != 255 {
		t.Errorf("discarded tile pixel = %v, want white", c)
	}
	if c := res.Image.NRGBAAt(220, 50); c.R != 0 {
		t.Errorf("kept tile pixel = %v, want black", c)
	}
}

func TestManifestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := ManifestPath(dir)
	m := NewManifest("0.3.0", "S", "/in/S.tif", "otsu")
	m.Kept = 4
	m.SetArtifact(path, &m.Metadata, MetadataPath(dir))
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kept != 4 || got.Method != "otsu" || got.Metadata != MetadataFile {
		t.Fatalf("manifest = %+v", got)
	}
	if got.Resolve(path, got.Metadata) != MetadataPath(dir) {
		t.Errorf("Resolve = %q", got.Resolve(path, got.Metadata))
	}
	if got.Finished.Before(got.Started) {
		t.Error("finished before started")
	}
}
