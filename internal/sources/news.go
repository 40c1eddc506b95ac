package sources

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// AggregateNews reads every configured feed and returns up to limit items
// whose title or content mentions any of topics. With no topics every item
// qualifies. Unreadable feeds are skipped.
func (s *Service) AggregateNews(ctx context.Context, topics []string, limit int) ([]domain.SourceDocument, error) {
	needles := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			needles = append(needles, t)
		}
	}

	var items []domain.SourceDocument
	for _, feedURL := range s.feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		feed, err := s.feedParser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.logger.Warn("feed unavailable", slog.String("feed", feedURL), slog.String("error", err.Error()))
			continue
		}
		for _, item := range feed.Items {
			content := item.Description
			if content == "" {
				content = item.Content
			}
			extracted := s.now().UTC()
			if item.PublishedParsed != nil {
				extracted = item.PublishedParsed.UTC()
			}
			items = append(items, domain.SourceDocument{
				URL:            item.Link,
				Title:          item.Title,
				Content:        content,
				SourceType:     domain.SourceNews,
				ExtractedAt:    extracted,
				RelevanceScore: defaultScore,
			})
		}
	}

	out := make([]domain.SourceDocument, 0, limit)
	for _, item := range items {
		if len(out) == limit {
			break
		}
		if len(needles) > 0 && !mentionsAny(item.Title+" "+item.Content, needles) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func mentionsAny(text string, needles []string) bool {
	text = strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
