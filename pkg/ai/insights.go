package ai

import (
	"context"
	"fmt"
	"strings"

	"atmosphera/pkg/domain"
)

// maxInsightSources caps the cited web sources returned per lookup.
const maxInsightSources = 3

// LiveInsights fetches a web-search-grounded summary for a single book:
// current reception, adaptations, anything newsworthy. Grounding and JSON
// response mode are mutually exclusive on the provider, so the summary is
// plain text and citations come from grounding metadata.
func (c *Client) LiveInsights(ctx context.Context, book domain.Book) (domain.LiveInsights, error) {
	prompt := fmt.Sprintf(
		"Search the web for current coverage of the book %q by %s. "+
			"Summarize in at most four sentences what readers are saying right now, "+
			"plus any recent adaptation or award news.",
		book.Title, book.Author)
	req := generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		Tools:    []Tool{{GoogleSearch: &struct{}{}}},
	}
	resp, err := c.generateRetry(ctx, c.textModel, req)
	if err != nil {
		return domain.LiveInsights{}, err
	}
	summary := strings.TrimSpace(candidateText(resp))
	if summary == "" {
		return domain.LiveInsights{}, newError(KindUnknown, "grounded response carried no text")
	}
	return domain.LiveInsights{
		Summary: summary,
		Sources: collectSources(resp.Candidates[0].GroundingMetadata),
	}, nil
}

func collectSources(meta *groundingMetadata) []domain.WebSource {
	if meta == nil {
		return nil
	}
	seen := make(map[string]struct{}, maxInsightSources)
	sources := make([]domain.WebSource, 0, maxInsightSources)
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, dup := seen[chunk.Web.URI]; dup {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		sources = append(sources, domain.WebSource{Title: chunk.Web.Title, URL: chunk.Web.URI})
		if len(sources) == maxInsightSources {
			break
		}
	}
	return sources
}
