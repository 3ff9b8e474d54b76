package extractor

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
)

// extractPDF pulls native text out of a PDF. pdfcpu validates the file and
// supplies the authoritative page count; corrupt input fails here before any
// heavier work runs.
func extractPDF(data []byte) (Extraction, error) {
	conf := pdfmodel.NewDefaultConfiguration()

	pageCount, err := pdfapi.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: invalid pdf: %v", faults.ErrExtractionFailed, err)
	}
	if pageCount < 1 {
		return Extraction{}, fmt.Errorf("%w: pdf has no pages", faults.ErrExtractionFailed)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: pdf reader: %v", faults.ErrExtractionFailed, err)
	}

	pages := make([]string, 0, pageCount)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		// Individual pages with broken font maps yield no text rather than
		// failing the document; the density gate catches the degenerate case.
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	text, spans := joinPages(pages)
	return Extraction{
		Text:      text,
		Method:    models.MethodNative,
		PageCount: pageCount,
		Pages:     spans,
	}, nil
}
