// Package agents implements the capabilities that execute workflow tasks:
// research, article writing, review, publishing and news aggregation.
package agents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/sources"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// Capability executes tasks of one type. Failures are reported through the
// returned AgentResult, never as a Go error.
type Capability interface {
	Name() string
	TaskType() domain.TaskType
	Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult
}

// SourceService gathers raw research material.
type SourceService interface {
	DeepResearch(ctx context.Context, topic string, tags []string) (*sources.ResearchBundle, error)
	AggregateNews(ctx context.Context, topics []string, limit int) ([]domain.SourceDocument, error)
}

// Indexer makes persisted content retrievable by similarity search.
type Indexer interface {
	Index(ctx context.Context, collection, id, text string, payload map[string]any) error
}

// Registry maps task types to their capabilities.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[domain.TaskType]Capability
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[domain.TaskType]Capability)}
}

// Register adds a capability. Safe to call concurrently.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.TaskType()] = c
}

// Get returns the capability for the given task type.
// Returns InvalidTaskTypeError if not registered.
func (r *Registry) Get(taskType domain.TaskType) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[taskType]
	if !ok {
		return nil, &domain.InvalidTaskTypeError{TaskType: taskType}
	}
	return c, nil
}

// Option configures any capability in this package.
type Option func(*base)

func WithLogger(l *slog.Logger) Option      { return func(b *base) { b.logger = l } }
func WithClock(now func() time.Time) Option { return func(b *base) { b.now = now } }

type base struct {
	logger *slog.Logger
	now    func() time.Time
}

func newBase(opts []Option) base {
	b := base{logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(&b)
	}
	return b
}

var tracer = otel.Tracer("agents")

// run wraps one capability execution in a span and converts an error into a
// failed AgentResult.
func (b *base) run(ctx context.Context, name string, in domain.TaskInput, fn func(context.Context) (domain.Result, error)) domain.AgentResult {
	ctx, span := tracer.Start(ctx, "capability."+name, trace.WithAttributes(attribute.String("topic", in.Topic)))
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		telemetry.FailSpan(span, err, name+" failed")
		b.logger.Error("capability failed",
			slog.String("capability", name),
			slog.String("topic", in.Topic),
			slog.String("error", err.Error()),
		)
		return domain.Failed(err.Error())
	}
	return domain.Succeeded(result)
}

// indexContent is best effort: content is already persisted and stays reachable by id.
func (b *base) indexContent(ctx context.Context, idx Indexer, collection, id, text string, payload map[string]any) {
	if err := idx.Index(ctx, collection, id, text, payload); err != nil {
		b.logger.Warn("indexing failed",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}
