package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type pdfRenderer func(ctx context.Context, html string) ([]byte, error)

// Service renders portfolio exports.
type Service struct {
	logger *zap.Logger
	pdf    pdfRenderer
	now    func() time.Time
}

// NewService returns an exporter that prints PDFs with headless Chrome.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, pdf: chromePDF, now: time.Now}
}

// Export renders req in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	generated := req.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}
	html, err := RenderPortfolioHTML(TemplateData{
		Record:      req.Record,
		Identifier:  req.Identifier,
		TxShort:     req.TxShort,
		TxURL:       req.TxURL,
		GeneratedAt: generated,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	base := sanitizeFilename(req.Record.Name)
	switch req.Format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF, "":
		start := s.now()
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("pdf rendered", zap.Int("bytes", len(data)), zap.Duration("duration", s.now().Sub(start)))
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
