package agents

import (
	"context"
	"fmt"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

const (
	newsBucket       = "news"
	defaultNewsLimit = 20
)

// Aggregate collects news items mentioning a topic or its tags and stores
// them as a research record in the "news" bucket.
type Aggregate struct {
	base
	sources SourceService
	content store.ContentStore
}

func NewAggregate(src SourceService, content store.ContentStore, opts ...Option) *Aggregate {
	return &Aggregate{base: newBase(opts), sources: src, content: content}
}

func (a *Aggregate) Name() string              { return "aggregate" }
func (a *Aggregate) TaskType() domain.TaskType { return domain.TypeAggregate }

func (a *Aggregate) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	return a.run(ctx, a.Name(), in, func(ctx context.Context) (domain.Result, error) {
		limit := defaultNewsLimit
		if p, ok := in.Params.(domain.AggregateParams); ok && p.Limit > 0 {
			limit = p.Limit
		}
		var topics []string
		if in.Topic != "" {
			topics = append(topics, in.Topic)
		}
		topics = append(topics, in.Tags...)

		items, err := a.sources.AggregateNews(ctx, topics, limit)
		if err != nil {
			return nil, fmt.Errorf("aggregate news: %w", err)
		}
		id, err := a.content.CreateResearch(ctx, &domain.ResearchRecord{
			Topic:     in.Topic,
			Tags:      in.Tags,
			Sources:   items,
			Bucket:    newsBucket,
			CreatedAt: a.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("save news: %w", err)
		}
		return domain.AggregateResult{ResearchID: id, ItemCount: len(items)}, nil
	})
}
