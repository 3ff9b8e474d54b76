package claims

import (
	"fmt"
	"strings"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

const systemPrompt = `You are an analyst extracting ESG claims from corporate sustainability reports.
Extract every discrete, checkable claim the company makes about its environmental or social performance.

Respond with a JSON array only, no prose. Each element:
{"text": "<claim as stated>", "category": "<category>", "chunk_ids": ["<id>", ...], "confidence": <0..1>}

Rules:
- category must be one of: %s
- chunk_ids must list the ids of the context chunks that support the claim; cite only ids that appear in the context
- every claim needs at least one chunk id
- confidence is your certainty that the text is a real claim made by the company`

func buildSystemPrompt() string {
	categories := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		categories = append(categories, string(c))
	}
	return fmt.Sprintf(systemPrompt, strings.Join(categories, ", "))
}

func buildUserPrompt(hits []types.IndexHit) string {
	var b strings.Builder
	b.WriteString("Context chunks:\n\n")
	for _, hit := range hits {
		fmt.Fprintf(&b, "[chunk %s]\n%s\n\n", hit.Chunk.ID, hit.Chunk.Text)
	}
	b.WriteString("Extract the ESG claims as a JSON array.")
	return b.String()
}
