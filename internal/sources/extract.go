package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchPage downloads url and extracts its heading and main text.
func (s *Service) FetchPage(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return extract(doc, url), nil
}

func extract(doc *goquery.Document, url string) *Page {
	doc.Find("script, style, nav, header, footer, aside, iframe").Remove()

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var content string
	for _, sel := range []string{"article", "main", ".content", ".post-content", "body"} {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			content = strings.Join(strings.Fields(node.Text()), " ")
			break
		}
	}
	if r := []rune(content); len(r) > maxPageRunes {
		content = string(r[:maxPageRunes])
	}
	return &Page{URL: url, Title: title, Content: content}
}
