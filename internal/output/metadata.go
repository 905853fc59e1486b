package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// MetadataFile is the tile selection table inside a sample directory.
const MetadataFile = "tile_selection.tsv"

var metadataHeader = []string{"Tile", "Width", "Height", "Keep", "Row", "Column"}

// Record describes one visited grid cell.
type Record struct {
	Name   string
	Width  int
	Height int
	Keep   bool
	Row    int
	Column int
}

// MetadataPath returns the table path inside a sample directory.
func MetadataPath(sampleDir string) string {
	return filepath.Join(sampleDir, MetadataFile)
}

// WriteMetadata writes records as a tab-separated table with a header row.
func WriteMetadata(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := EncodeMetadata(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeMetadata writes the table to w.
func EncodeMetadata(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(metadataHeader); err != nil {
		return fmt.Errorf("output: metadata header: %w", err)
	}
	for _, r := range records {
		keep := "0"
		if r.Keep {
			keep = "1"
		}
		row := []string{
			r.Name,
			strconv.Itoa(r.Width),
			strconv.Itoa(r.Height),
			keep,
			strconv.Itoa(r.Row),
			strconv.Itoa(r.Column),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("output: metadata %s: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetadata parses a table written by WriteMetadata.
func ReadMetadata(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	defer f.Close()
	return DecodeMetadata(f)
}

// DecodeMetadata parses the table from r. Columns are matched by header name.
func DecodeMetadata(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("output: metadata: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("output: metadata: empty table")
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, name := range metadataHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("output: metadata: missing column %q", name)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		var rec Record
		rec.Name = row[col["Tile"]]
		ints := []struct {
			name string
			dst  *int
		}{
			{"Width", &rec.Width},
			{"Height", &rec.Height},
			{"Row", &rec.Row},
			{"Column", &rec.Column},
		}
		for _, f := range ints {
			v, err := strconv.Atoi(row[col[f.name]])
			if err != nil {
				return nil, fmt.Errorf("output: metadata line %d: %s: %w", n+2, f.name, err)
			}
			*f.dst = v
		}
		switch row[col["Keep"]] {
		case "1":
			rec.Keep = true
		case "0":
		default:
			return nil, fmt.Errorf("output: metadata line %d: keep %q", n+2, row[col["Keep"]])
		}
		records = append(records, rec)
	}
	return records, nil
}

// KeptCount returns the number of kept records.
func KeptCount(records []Record) int {
	n := 0
	for _, r := range records {
		if r.Keep {
			n++
		}
	}
	return n
}
