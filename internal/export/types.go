// Package export renders the public portfolio as HTML or PDF.
package export

import (
	"errors"
	"time"

	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request contains the record and provenance to render.
type Request struct {
	Record      portfolio.Record
	Identifier  string
	TxShort     string
	TxURL       string
	Format      Format
	GeneratedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
)
