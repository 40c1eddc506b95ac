package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

type searxngResponse struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// SearchWeb queries SearXNG's JSON API and returns up to limit results.
func (s *Service) SearchWeb(ctx context.Context, query string, limit int) ([]domain.SourceDocument, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	params.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searxngURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("search %q: searxng returned status %d", query, resp.StatusCode)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	now := s.now().UTC()
	docs := make([]domain.SourceDocument, 0, min(limit, len(body.Results)))
	for _, r := range body.Results {
		if len(docs) == limit {
			break
		}
		score := r.Score
		if score == 0 {
			score = defaultScore
		}
		docs = append(docs, domain.SourceDocument{
			URL:            r.URL,
			Title:          r.Title,
			Content:        r.Content,
			SourceType:     domain.SourceWeb,
			ExtractedAt:    now,
			RelevanceScore: score,
		})
	}
	return docs, nil
}
