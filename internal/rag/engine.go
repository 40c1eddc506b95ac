// Package rag answers questions and generates content grounded on indexed
// articles, knowledge entries and research records.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/vector"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

const (
	// DefaultLimit is the per-collection search limit when none is given.
	DefaultLimit = 5
	// MaxSources bounds the ranked context handed to generation.
	MaxSources = 5

	snippetRunes = 500

	answerSystemMessage = "You are a helpful assistant that provides accurate answers based on the given context."
)

// RetrievalIndex is the similarity search backend.
type RetrievalIndex interface {
	Search(ctx context.Context, req vector.SearchRequest) ([]vector.Match, error)
	Upsert(ctx context.Context, collection, id string, vec []float32, payload vector.Payload) error
	Delete(ctx context.Context, collection, id string) error
}

// ContentResolver loads the text of an indexed document. ok is false when
// the document no longer exists.
type ContentResolver interface {
	Resolve(ctx context.Context, collection, id string) (content string, ok bool, err error)
}

// QueryOptions narrows a query. Zero values select every default collection
// and DefaultLimit hits per collection.
type QueryOptions struct {
	Collections []string
	Limit       int
	Tags        []string
}

// QueryResult is a generated answer with the context it was grounded on.
type QueryResult struct {
	Answer     string                `json:"answer"`
	Sources    []domain.RetrievalHit `json:"sources"`
	Confidence float64               `json:"confidence"`
}

// GenerationResult is content generated with retrieved context.
type GenerationResult struct {
	Content    string                `json:"content"`
	Sources    []domain.RetrievalHit `json:"sources"`
	Confidence float64               `json:"confidence"`
}

// Engine ties embedding, retrieval and generation together.
type Engine struct {
	embedder llm.Embedder
	gen      llm.Generator
	index    RetrievalIndex
	resolver ContentResolver
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(embedder llm.Embedder, gen llm.Generator, index RetrievalIndex, resolver ContentResolver, opts ...Option) *Engine {
	e := &Engine{
		embedder: embedder,
		gen:      gen,
		index:    index,
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var tracer = otel.Tracer("rag")

// Query embeds question, searches every requested collection concurrently,
// resolves the hits to content and asks the model for an answer based on the
// top MaxSources of them. With nothing retrieved the model is still asked and
// confidence is 0.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "rag.query")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, &domain.ValidationError{Field: "question", Reason: "is required"}
	}
	collections := opts.Collections
	if len(collections) == 0 {
		collections = domain.DefaultCollections
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	span.SetAttributes(
		attribute.StringSlice("rag.collections", collections),
		attribute.Int("rag.limit", limit),
	)

	result, err := e.query(ctx, question, collections, limit, opts.Tags)
	if err != nil {
		telemetry.FailSpan(span, err, "rag query failed")
		telemetry.RAGQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	telemetry.RAGQueriesTotal.WithLabelValues("ok").Inc()
	telemetry.RAGConfidence.Observe(result.Confidence)
	telemetry.RAGSourcesUsed.Observe(float64(len(result.Sources)))
	return result, nil
}

func (e *Engine) query(ctx context.Context, question string, collections []string, limit int, tags []string) (*QueryResult, error) {
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	ranked, err := e.retrieve(ctx, vec, collections, limit, tags)
	if err != nil {
		return nil, err
	}

	answer, err := e.gen.Generate(ctx, answerPrompt(question, ranked), llm.Options{
		Temperature:   llm.Temperature(0.3),
		MaxTokens:     1000,
		SystemMessage: answerSystemMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &QueryResult{Answer: answer, Sources: ranked, Confidence: Confidence(ranked)}, nil
}

// retrieve runs one search and resolution per collection and returns the
// resolved hits ranked by descending score, at most MaxSources of them.
func (e *Engine) retrieve(ctx context.Context, vec []float32, collections []string, limit int, tags []string) ([]domain.RetrievalHit, error) {
	perCollection := make([][]domain.RetrievalHit, len(collections))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(collections))
	for i, collection := range collections {
		g.Go(func() error {
			hits, err := e.searchCollection(gCtx, collection, vec, limit, tags)
			if err != nil {
				return err
			}
			perCollection[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.RetrievalHit
	for _, hits := range perCollection {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > MaxSources {
		merged = merged[:MaxSources]
	}
	return merged, nil
}

func (e *Engine) searchCollection(ctx context.Context, collection string, vec []float32, limit int, tags []string) ([]domain.RetrievalHit, error) {
	matches, err := e.index.Search(ctx, vector.SearchRequest{
		Collection: collection,
		Vector:     vec,
		Limit:      limit,
		Tags:       tags,
	})
	if errors.Is(err, vector.ErrCollectionNotFound) {
		e.logger.Debug("collection not found", slog.String("collection", collection))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]domain.RetrievalHit, 0, len(matches))
	for _, m := range matches {
		content, ok, err := e.resolver.Resolve(ctx, collection, m.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", collection, m.ID, err)
		}
		if !ok {
			e.logger.Debug("dropping unresolvable hit",
				slog.String("collection", collection),
				slog.String("id", m.ID),
			)
			continue
		}
		hits = append(hits, domain.RetrievalHit{
			Collection: collection,
			DocumentID: m.ID,
			Score:      clampScore(m.Score),
			Content:    content,
			Resolved:   true,
		})
	}
	return hits, nil
}

// clampScore maps an index similarity (cosine can be negative) into [0,1].
func clampScore(s float64) float64 {
	return max(0, min(s, 1))
}

// Confidence is the mean score of hits kept within [0,1], or 0 without hits.
func Confidence(hits []domain.RetrievalHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	return clampScore(sum / float64(len(hits)))
}

func contextBlock(hits []domain.RetrievalHit, runes int) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		content := h.Content
		if runes > 0 {
			content = llm.Truncate(content, runes)
		}
		parts[i] = fmt.Sprintf("[%d] %s", i+1, content)
	}
	return strings.Join(parts, "\n\n")
}

func answerPrompt(question string, hits []domain.RetrievalHit) string {
	return fmt.Sprintf(`Based on the following context, answer the question: "%s"

Context:
%s

Provide a comprehensive answer based on the context provided. If the context doesn't contain enough information, say so.

Answer:`, question, contextBlock(hits, 0))
}

// GenerateWithContext retrieves context for prompt and generates long-form
// content with each source's first 500 characters appended to the prompt.
func (e *Engine) GenerateWithContext(ctx context.Context, prompt string, tags []string) (*GenerationResult, error) {
	ctx, span := tracer.Start(ctx, "rag.generate_with_context")
	defer span.End()

	qr, err := e.Query(ctx, prompt, QueryOptions{Tags: tags, Limit: DefaultLimit})
	if err != nil {
		telemetry.FailSpan(span, err, "query failed")
		return nil, err
	}

	enhanced := fmt.Sprintf(`%s

Relevant context for reference:
%s

Generate comprehensive content based on the prompt and context:`, prompt, contextBlock(qr.Sources, snippetRunes))

	content, err := e.gen.Generate(ctx, enhanced, llm.Options{Temperature: llm.Temperature(0.7), MaxTokens: 2500})
	if err != nil {
		err = fmt.Errorf("generate content: %w", err)
		telemetry.FailSpan(span, err, "generation failed")
		return nil, err
	}
	return &GenerationResult{Content: content, Sources: qr.Sources, Confidence: qr.Confidence}, nil
}

// Index embeds text and stores it under id in collection.
func (e *Engine) Index(ctx context.Context, collection, id, text string, payload map[string]any) error {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s/%s: %w", collection, id, err)
	}
	if err := e.index.Upsert(ctx, collection, id, vec, payload); err != nil {
		return err
	}
	return nil
}

// Remove deletes id from collection.
func (e *Engine) Remove(ctx context.Context, collection, id string) error {
	return e.index.Delete(ctx, collection, id)
}
