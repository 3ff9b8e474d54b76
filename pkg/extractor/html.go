package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
)

// extractHTML pulls the readable text out of an HTML report. Sustainability
// reports published as web pages bury the content under navigation and
// cookie banners, so the main content area is located first and the body is
// only a fallback.
func extractHTML(data []byte) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: invalid html: %v", faults.ErrExtractionFailed, err)
	}

	doc.Find("script, style, nav, header, footer").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".report",
		"#report",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	content = cleanContent(content)
	if content == "" {
		return Extraction{}, fmt.Errorf("%w: html contains no text", faults.ErrExtractionFailed)
	}

	return Extraction{
		Text:      content,
		Method:    models.MethodNative,
		PageCount: 1,
		Pages:     []models.PageSpan{{Number: 1, Start: 0, End: len(content)}},
	}, nil
}

func cleanContent(content string) string {
	// Collapse whitespace runs but keep line structure for sentence splits
	lines := strings.Split(content, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	content = strings.Join(kept, "\n")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}
