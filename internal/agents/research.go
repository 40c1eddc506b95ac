package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

const (
	defaultBucket     = "general"
	summaryInputRunes = 8000
	researchSummary   = 300
)

// Research gathers sources for a topic, condenses them into a summary and key
// points, and stores the result as a ResearchRecord.
type Research struct {
	base
	sources SourceService
	gen     llm.Generator
	content store.ContentStore
	index   Indexer
}

func NewResearch(src SourceService, gen llm.Generator, content store.ContentStore, index Indexer, opts ...Option) *Research {
	return &Research{base: newBase(opts), sources: src, gen: gen, content: content, index: index}
}

func (r *Research) Name() string              { return "research" }
func (r *Research) TaskType() domain.TaskType { return domain.TypeResearch }

func (r *Research) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	return r.run(ctx, r.Name(), in, func(ctx context.Context) (domain.Result, error) {
		return r.research(ctx, in)
	})
}

func (r *Research) research(ctx context.Context, in domain.TaskInput) (domain.Result, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, &domain.ValidationError{Field: "topic", Reason: "is required"}
	}
	bucket := defaultBucket
	if p, ok := in.Params.(domain.ResearchParams); ok && p.Bucket != "" {
		bucket = p.Bucket
	}

	bundle, err := r.sources.DeepResearch(ctx, in.Topic, in.Tags)
	if err != nil {
		return nil, fmt.Errorf("deep research: %w", err)
	}
	docs := bundle.Documents()

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	material := llm.Truncate(strings.Join(contents, "\n\n"), summaryInputRunes)

	summary, err := llm.Summarize(ctx, r.gen, material, researchSummary)
	if err != nil {
		return nil, fmt.Errorf("summarize research: %w", err)
	}
	keyPoints, err := llm.ExtractKeyPoints(ctx, r.gen, material)
	if err != nil {
		return nil, fmt.Errorf("extract key points: %w", err)
	}

	record := &domain.ResearchRecord{
		Topic:     in.Topic,
		Tags:      in.Tags,
		Sources:   docs,
		Summary:   summary,
		KeyPoints: keyPoints,
		Bucket:    bucket,
		CreatedAt: r.now().UTC(),
	}
	id, err := r.content.CreateResearch(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("save research: %w", err)
	}

	text := in.Topic + "\n\n" + summary + "\n\n" + strings.Join(keyPoints, "\n")
	r.indexContent(ctx, r.index, domain.CollectionResearchData, id, text, map[string]any{
		"topic": in.Topic,
		"tags":  in.Tags,
		"type":  "research",
	})

	return domain.ResearchResult{
		ResearchID:  id,
		Summary:     summary,
		KeyPoints:   keyPoints,
		SourceCount: len(docs),
	}, nil
}
