package extractor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

type ExtractorConfig struct {
	// MinCharsPerPage is the native-extraction density floor. Documents
	// averaging fewer extracted characters per page are assumed scanned and
	// routed through OCR.
	MinCharsPerPage int
	OCR             types.OCRClient
}

// Extraction is the normalized output of one document: plain text plus the
// provenance the rest of the pipeline needs.
type Extraction struct {
	Text      string
	Method    models.ExtractionMethod
	PageCount int
	Pages     []models.PageSpan
}

type Extractor struct {
	config ExtractorConfig
	logger *zap.Logger
}

func NewWithConfig(config ExtractorConfig, logger *zap.Logger) Extractor {
	if config.MinCharsPerPage == 0 {
		config.MinCharsPerPage = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return Extractor{config: config, logger: logger}
}

// Extract normalizes raw document bytes into plain text with page offsets.
// Native extraction runs first; when its yield falls below the density floor
// the document is re-extracted through the OCR backend and the chosen method
// is recorded for provenance.
func (e *Extractor) Extract(ctx context.Context, data []byte, format models.DocumentFormat) (Extraction, error) {
	if len(data) == 0 {
		return Extraction{}, fmt.Errorf("%w: empty document", faults.ErrExtractionFailed)
	}

	var (
		ext Extraction
		err error
	)

	switch format {
	case models.FormatPDF:
		ext, err = extractPDF(data)
	case models.FormatHTML:
		ext, err = extractHTML(data)
	default:
		return Extraction{}, fmt.Errorf("%w: %q", faults.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Extraction{}, err
	}

	if e.denseEnough(ext) {
		return ext, nil
	}

	e.logger.Info("native extraction below density floor, falling back to ocr",
		zap.Int("chars", len(ext.Text)),
		zap.Int("pages", ext.PageCount),
		zap.Int("min_chars_per_page", e.config.MinCharsPerPage))

	if e.config.OCR == nil {
		return Extraction{}, fmt.Errorf("%w: document appears scanned and no ocr backend is configured", faults.ErrExtractionFailed)
	}

	return e.extractOCR(ctx, data, ext.PageCount)
}

func (e *Extractor) denseEnough(ext Extraction) bool {
	pages := ext.PageCount
	if pages < 1 {
		pages = 1
	}
	return len(ext.Text)/pages >= e.config.MinCharsPerPage
}

func (e *Extractor) extractOCR(ctx context.Context, data []byte, nativePages int) (Extraction, error) {
	text, pages, err := e.config.OCR.Recognize(ctx, data)
	if err != nil {
		return Extraction{}, err
	}

	if len(pages) == 0 {
		pageCount := nativePages
		if pageCount < 1 {
			pageCount = 1
		}
		return Extraction{
			Text:      text,
			Method:    models.MethodOCR,
			PageCount: pageCount,
			Pages:     []models.PageSpan{{Number: 1, Start: 0, End: len(text)}},
		}, nil
	}

	joined, spans := joinPages(pages)
	return Extraction{
		Text:      joined,
		Method:    models.MethodOCR,
		PageCount: len(pages),
		Pages:     spans,
	}, nil
}

// joinPages concatenates per-page text with newline separators and records
// each page's character range in the joined text.
func joinPages(pages []string) (string, []models.PageSpan) {
	var (
		text  string
		spans []models.PageSpan
	)

	for i, page := range pages {
		start := len(text)
		text += page
		if i < len(pages)-1 {
			text += "\n"
		}
		spans = append(spans, models.PageSpan{Number: i + 1, Start: start, End: len(text)})
	}

	return text, spans
}
