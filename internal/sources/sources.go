// Package sources gathers raw research material: SearXNG web search, RSS news
// feeds and readable text extracted from web pages.
package sources

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

const (
	userAgent = "Mozilla/5.0 (compatible; go-content-flow/1.0)"

	webResultLimit  = 10
	newsResultLimit = 10
	extractTopN     = 5
	maxPageRunes    = 5000
	defaultScore    = 0.5
)

// DefaultFeeds is used when no RSS feeds are configured.
var DefaultFeeds = []string{
	"https://news.ycombinator.com/rss",
	"https://www.reddit.com/r/technology/.rss",
	"https://techcrunch.com/feed/",
	"https://feeds.arstechnica.com/arstechnica/index",
	"https://www.wired.com/feed/rss",
}

// Page is the readable content of a fetched URL.
type Page struct {
	URL     string
	Title   string
	Content string
}

// ResearchBundle is everything DeepResearch found for a topic.
type ResearchBundle struct {
	Web   []domain.SourceDocument
	News  []domain.SourceDocument
	Pages []Page
}

// Documents flattens the bundle into source documents, web results first.
func (b *ResearchBundle) Documents() []domain.SourceDocument {
	docs := make([]domain.SourceDocument, 0, len(b.Web)+len(b.News)+len(b.Pages))
	docs = append(docs, b.Web...)
	docs = append(docs, b.News...)
	for _, p := range b.Pages {
		docs = append(docs, domain.SourceDocument{
			URL:            p.URL,
			Title:          p.Title,
			Content:        p.Content,
			SourceType:     domain.SourceWeb,
			RelevanceScore: defaultScore,
		})
	}
	return docs
}

// Service talks to the configured search engine and feeds. Individual source
// failures are logged and skipped so one dead feed never fails research.
type Service struct {
	searxngURL string
	feeds      []string
	httpClient *http.Client
	feedParser *gofeed.Parser
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithHTTPClient(h *http.Client) Option { return func(s *Service) { s.httpClient = h } }
func WithFeeds(feeds []string) Option      { return func(s *Service) { s.feeds = feeds } }
func WithLogger(l *slog.Logger) Option     { return func(s *Service) { s.logger = l } }

func NewService(searxngURL string, opts ...Option) *Service {
	s := &Service{
		searxngURL: strings.TrimSuffix(searxngURL, "/"),
		feeds:      DefaultFeeds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.feedParser = gofeed.NewParser()
	s.feedParser.Client = s.httpClient
	s.feedParser.UserAgent = userAgent
	return s
}

// DeepResearch runs a web search for topic and tags, aggregates matching news
// and extracts the full text of the top web results.
func (s *Service) DeepResearch(ctx context.Context, topic string, tags []string) (*ResearchBundle, error) {
	query := strings.TrimSpace(topic + " " + strings.Join(tags, " "))

	web, err := s.SearchWeb(ctx, query, webResultLimit)
	if err != nil {
		s.logger.Warn("web search failed", slog.String("topic", topic), slog.String("error", err.Error()))
	}

	news, err := s.AggregateNews(ctx, append([]string{topic}, tags...), newsResultLimit)
	if err != nil {
		return nil, err
	}

	bundle := &ResearchBundle{Web: web, News: news}
	for i, doc := range web {
		if i == extractTopN {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.FetchPage(ctx, doc.URL)
		if err != nil {
			s.logger.Warn("page extraction failed", slog.String("url", doc.URL), slog.String("error", err.Error()))
			continue
		}
		bundle.Pages = append(bundle.Pages, *page)
	}
	return bundle, nil
}
