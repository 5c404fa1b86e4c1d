// Package export produces spreadsheet and PDF downloads of ward statistics
// and reads spreadsheet imports back into validated records.
package export

import (
	"errors"
	"fmt"
	"strings"

	"digiprofile/api/internal/wardstat"
)

// Format represents the export output format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a format; empty means xlsx.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
}

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// RowError lists the field errors of one spreadsheet row. Row is 1-based as
// shown by spreadsheet programs.
type RowError struct {
	Row    int                  `json:"row"`
	Errors wardstat.FieldErrors `json:"errors"`
}

// ImportErrors is returned when any row of an import fails validation.
type ImportErrors []RowError

func (e ImportErrors) Error() string {
	if len(e) == 0 {
		return "import failed"
	}
	return fmt.Sprintf("import failed: %d invalid rows, first at row %d: %v", len(e), e[0].Row, e[0].Errors)
}

var (
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrBadWorkbook indicates an uploaded file is not a usable spreadsheet.
	ErrBadWorkbook = errors.New("workbook unreadable")
)
