package llm

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// VectorCache stores embeddings by model and input text.
type VectorCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

// CachedEmbedder consults a VectorCache before calling the wrapped Embedder.
// Cache failures are logged and bypassed.
type CachedEmbedder struct {
	inner  Embedder
	cache  VectorCache
	model  string
	logger *slog.Logger
}

func NewCachedEmbedder(inner Embedder, cache VectorCache, model string, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model, logger: logger}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, ok, err := e.cache.Get(ctx, e.model, text)
	switch {
	case err != nil:
		telemetry.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		e.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
	case ok:
		telemetry.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	default:
		telemetry.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}

	vec, err = e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, e.model, text, vec); err != nil {
		e.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
	return vec, nil
}
