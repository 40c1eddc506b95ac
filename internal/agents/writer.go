package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

const (
	excerptWords     = 150
	maxGeneratedTags = 10
	maxSlugLen       = 100
)

// Writer turns a research record into a draft article.
type Writer struct {
	base
	gen     llm.Generator
	content store.ContentStore
	index   Indexer
}

func NewWriter(gen llm.Generator, content store.ContentStore, index Indexer, opts ...Option) *Writer {
	return &Writer{base: newBase(opts), gen: gen, content: content, index: index}
}

func (w *Writer) Name() string              { return "writer" }
func (w *Writer) TaskType() domain.TaskType { return domain.TypeGeneration }

func (w *Writer) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	return w.run(ctx, w.Name(), in, func(ctx context.Context) (domain.Result, error) {
		return w.write(ctx, in)
	})
}

func (w *Writer) write(ctx context.Context, in domain.TaskInput) (domain.Result, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, &domain.ValidationError{Field: "topic", Reason: "is required"}
	}
	params, _ := in.Params.(domain.GenerationParams)

	var sourceDocs []domain.SourceDocument
	if params.ResearchID != "" {
		research, err := w.content.GetResearch(ctx, params.ResearchID)
		var notFound *domain.EntityNotFoundError
		switch {
		case errors.As(err, &notFound):
			w.logger.Warn("research not found, writing without sources", slog.String("research_id", params.ResearchID))
		case err != nil:
			return nil, fmt.Errorf("load research: %w", err)
		default:
			sourceDocs = research.Sources
		}
	}

	body, err := llm.GenerateArticle(ctx, w.gen, in.Topic, sourceDocs, in.Tags, params.Style)
	if err != nil {
		return nil, fmt.Errorf("generate article: %w", err)
	}
	excerpt, err := llm.Summarize(ctx, w.gen, body, excerptWords)
	if err != nil {
		return nil, fmt.Errorf("generate excerpt: %w", err)
	}
	generated, err := llm.GenerateTags(ctx, w.gen, body, maxGeneratedTags)
	if err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}

	article := &domain.Article{
		Title:      in.Topic,
		Slug:       Slugify(in.Topic),
		Content:    body,
		Excerpt:    excerpt,
		Tags:       MergeTags(in.Tags, generated),
		Status:     domain.ArticleDraft,
		ResearchID: params.ResearchID,
		CreatedAt:  w.now().UTC(),
	}
	id, err := w.content.CreateArticle(ctx, article)
	if err != nil {
		return nil, fmt.Errorf("save article: %w", err)
	}

	w.indexContent(ctx, w.index, domain.CollectionArticles, id,
		article.Title+"\n\n"+article.Excerpt+"\n\n"+article.Content,
		map[string]any{"title": article.Title, "tags": article.Tags, "type": "article"},
	)

	return domain.ArticleResult{
		ArticleID: id,
		Title:     article.Title,
		Slug:      article.Slug,
		WordCount: len(strings.Fields(body)),
	}, nil
}

// Slugify lowercases s, collapses every run of characters outside [a-z0-9]
// into a single '-', trims leading and trailing dashes and caps the result
// at 100 bytes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}

// MergeTags returns the input tags followed by the generated ones, keeping
// the first occurrence of each.
func MergeTags(input, generated []string) []string {
	seen := make(map[string]bool, len(input)+len(generated))
	out := make([]string, 0, len(input)+len(generated))
	for _, list := range [][]string{input, generated} {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
