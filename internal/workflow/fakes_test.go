package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/agents"
	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/sqlite"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := sqlite.OpenDSN(fmt.Sprintf("file:wf_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// tickingClock advances one millisecond per reading so timestamps are
// strictly ordered.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *tickingClock {
	return &tickingClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// ── mocks ───────────────────────────────────────────────────────────────────

type stubCapability struct {
	name      string
	taskType  domain.TaskType
	result    domain.AgentResult
	onExecute func(ctx context.Context)

	mu    sync.Mutex
	calls []domain.TaskInput
}

func (s *stubCapability) Name() string              { return s.name }
func (s *stubCapability) TaskType() domain.TaskType { return s.taskType }

func (s *stubCapability) Execute(ctx context.Context, in domain.TaskInput) domain.AgentResult {
	s.mu.Lock()
	s.calls = append(s.calls, in)
	s.mu.Unlock()
	if s.onExecute != nil {
		s.onExecute(ctx)
	}
	return s.result
}

func (s *stubCapability) inputs() []domain.TaskInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskInput(nil), s.calls...)
}

func researchOK() *stubCapability {
	return &stubCapability{name: "research", taskType: domain.TypeResearch,
		result: domain.Succeeded(domain.ResearchResult{ResearchID: "r-1", Summary: "s", SourceCount: 4})}
}

func writerOK() *stubCapability {
	return &stubCapability{name: "writer", taskType: domain.TypeGeneration,
		result: domain.Succeeded(domain.ArticleResult{ArticleID: "a-1", Title: "Go", Slug: "go", WordCount: 1200})}
}

func registry(caps ...agents.Capability) *agents.Registry {
	reg := agents.NewRegistry()
	for _, c := range caps {
		reg.Register(c)
	}
	return reg
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
}

func (r *recordingSink) PublishTaskEvent(_ context.Context, ev domain.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) transitions(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.TaskID == taskID {
			out = append(out, string(ev.From)+">"+string(ev.To))
		}
	}
	return out
}

// failingStore fails the named operation and delegates the rest.
type failingStore struct {
	store.TaskStore
	failOn string
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Create(ctx context.Context, t *domain.WorkflowTask) (string, error) {
	if f.failOn == "create" {
		return "", errStoreDown
	}
	return f.TaskStore.Create(ctx, t)
}

func (f *failingStore) Save(ctx context.Context, t *domain.WorkflowTask) error {
	if f.failOn == "save" {
		return errStoreDown
	}
	return f.TaskStore.Save(ctx, t)
}

type stubLocker struct {
	deny     map[string]bool
	released []string
}

func (l *stubLocker) Acquire(_ context.Context, name, _ string) (bool, error) {
	return !l.deny[name], nil
}

func (l *stubLocker) Release(_ context.Context, name, _ string) error {
	l.released = append(l.released, name)
	return nil
}

func commonOpts(clock *tickingClock, sink workflow.EventSink) []workflow.Option {
	opts := []workflow.Option{workflow.WithLogger(discard), workflow.WithClock(clock.Now)}
	if sink != nil {
		opts = append(opts, workflow.WithEvents(sink))
	}
	return opts
}
