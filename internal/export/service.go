package export

import (
	"context"
	"fmt"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/wardstat"
)

// PageRenderer renders the printable report page of a dataset.
type PageRenderer interface {
	RenderPrint(ctx context.Context, ds catalog.Dataset, records []wardstat.Record, lang catalog.Lang) ([]byte, error)
}

// Request contains parameters for an export operation
type Request struct {
	Format  Format
	Dataset catalog.Dataset
	Records []wardstat.Record
	Lang    catalog.Lang
}

// Service provides dataset export functionality
type Service struct {
	pages PageRenderer
	print Printer
}

// NewService creates an export service. A nil printer uses headless Chrome.
func NewService(pages PageRenderer, printer Printer) *Service {
	if printer == nil {
		printer = ChromePrinter
	}
	return &Service{pages: pages, print: printer}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatXLSX, "":
		return Workbook(req.Dataset, req.Records, req.Lang)
	case FormatPDF:
		if s.pages == nil {
			return nil, fmt.Errorf("%w: no page renderer", ErrPDFDependencyMissing)
		}
		html, err := s.pages.RenderPrint(ctx, req.Dataset, req.Records, req.Lang)
		if err != nil {
			return nil, fmt.Errorf("render page: %w", err)
		}
		data, err := s.print(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(req.Dataset.Slug) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
}
