package agents

import (
	"context"
	"fmt"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

// Review asks the model for an editorial verdict on an article and marks it
// reviewed when approved.
type Review struct {
	base
	gen     llm.Generator
	content store.ContentStore
}

func NewReview(gen llm.Generator, content store.ContentStore, opts ...Option) *Review {
	return &Review{base: newBase(opts), gen: gen, content: content}
}

func (r *Review) Name() string              { return "review" }
func (r *Review) TaskType() domain.TaskType { return domain.TypeReview }

func (r *Review) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	return r.run(ctx, r.Name(), in, func(ctx context.Context) (domain.Result, error) {
		params, _ := in.Params.(domain.ReviewParams)
		if params.ArticleID == "" {
			return nil, &domain.ValidationError{Field: "article_id", Reason: "is required"}
		}
		article, err := r.content.GetArticle(ctx, params.ArticleID)
		if err != nil {
			return nil, err
		}

		verdict, err := llm.ReviewArticle(ctx, r.gen, article.Title, article.Content)
		if err != nil {
			return nil, fmt.Errorf("review article: %w", err)
		}
		if verdict.Approved {
			if err := r.content.MarkArticleReviewed(ctx, article.ID); err != nil {
				return nil, fmt.Errorf("mark reviewed: %w", err)
			}
		}
		return domain.ReviewResult{ArticleID: article.ID, Approved: verdict.Approved, Notes: verdict.Notes}, nil
	})
}
