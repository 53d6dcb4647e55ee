// Package tabular reads import sheets and writes report tables as CSV or XLSX.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a tabular file format.
type Format string

// Format values.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Errors returned by readers and writers.
var (
	ErrUnsupportedFormat = errors.New("unsupported tabular format")
	ErrNoHeader          = errors.New("sheet has no header row")
)

// Sheet is one header row plus the data records under it.
type Sheet struct {
	Header  []string
	Records [][]string
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseFormat parses a format name, ignoring case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Read decodes a sheet in the given format.
func Read(r io.Reader, format Format) (Sheet, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadXLSX(r)
	default:
		return Sheet{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadFile opens path and decodes it by extension.
func ReadFile(path string) (Sheet, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Sheet{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Sheet{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sheet, err := Read(f, format)
	if err != nil {
		return Sheet{}, fmt.Errorf("read %s: %w", path, err)
	}
	return sheet, nil
}

// splitSheet takes the first non-blank row as the header.
func splitSheet(rows [][]string) (Sheet, error) {
	for i, row := range rows {
		if blank(row) {
			continue
		}
		return Sheet{Header: row, Records: rows[i+1:]}, nil
	}
	return Sheet{}, ErrNoHeader
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
