package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

// publishPayload is the JSON body POSTed to the publish webhook.
type publishPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	PublishedAt time.Time `json:"published_at"`
}

// Publish delivers an article to a webhook and marks it published.
type Publish struct {
	base
	content    store.ContentStore
	client     *http.Client
	defaultURL string
}

// NewPublish creates a Publish capability. defaultURL is used when the task
// does not name a webhook.
func NewPublish(content store.ContentStore, defaultURL string, opts ...Option) *Publish {
	return &Publish{
		base:       newBase(opts),
		content:    content,
		client:     &http.Client{Timeout: 15 * time.Second},
		defaultURL: defaultURL,
	}
}

func (p *Publish) Name() string              { return "publish" }
func (p *Publish) TaskType() domain.TaskType { return domain.TypePublish }

func (p *Publish) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	return p.run(ctx, p.Name(), in, func(ctx context.Context) (domain.Result, error) {
		return p.publish(ctx, in)
	})
}

func (p *Publish) publish(ctx context.Context, in domain.TaskInput) (domain.Result, error) {
	params, _ := in.Params.(domain.PublishParams)
	if params.ArticleID == "" {
		return nil, &domain.ValidationError{Field: "article_id", Reason: "is required"}
	}
	url := params.WebhookURL
	if url == "" {
		url = p.defaultURL
	}
	if url == "" {
		return nil, &domain.ValidationError{Field: "webhook_url", Reason: "is required when no default is configured"}
	}

	article, err := p.content.GetArticle(ctx, params.ArticleID)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	body, err := json.Marshal(publishPayload{
		ID:          article.ID,
		Title:       article.Title,
		Slug:        article.Slug,
		Excerpt:     article.Excerpt,
		Content:     article.Content,
		Tags:        article.Tags,
		PublishedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal article: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("webhook.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}

	if err := p.content.MarkArticlePublished(ctx, article.ID, now); err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	return domain.PublishResult{ArticleID: article.ID, URL: url, StatusCode: resp.StatusCode}, nil
}
