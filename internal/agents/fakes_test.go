package agents_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/sources"
)

var (
	discard   = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// ── mocks ───────────────────────────────────────────────────────────────────

// promptGenerator answers by matching the prompt's opening words.
type promptGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	prompts []string
}

func (g *promptGenerator) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	for prefix, reply := range g.replies {
		if strings.HasPrefix(prompt, prefix) {
			return reply, nil
		}
	}
	return "", fmt.Errorf("unexpected prompt: %.40s", prompt)
}

func defaultReplies() map[string]string {
	return map[string]string{
		"Summarize":         "A short summary.",
		"Extract":           "1. Point one\n2. Point two",
		"Generate relevant": "go, concurrency, Go",
		"Write":             "# Title\n\nThe article body has seven words.",
		"Review":            "APPROVED\nLooks good.",
	}
}

type fakeSources struct {
	bundle *sources.ResearchBundle
	news   []domain.SourceDocument
	err    error

	gotTopics []string
	gotLimit  int
}

func (f *fakeSources) DeepResearch(context.Context, string, []string) (*sources.ResearchBundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

func (f *fakeSources) AggregateNews(_ context.Context, topics []string, limit int) ([]domain.SourceDocument, error) {
	f.gotTopics, f.gotLimit = topics, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.news, nil
}

type indexCall struct {
	Collection, ID, Text string
	Payload              map[string]any
}

type fakeIndexer struct {
	calls []indexCall
	err   error
}

func (f *fakeIndexer) Index(_ context.Context, collection, id, text string, payload map[string]any) error {
	f.calls = append(f.calls, indexCall{collection, id, text, payload})
	return f.err
}

type fakeContent struct {
	mu        sync.Mutex
	seq       int
	research  map[string]*domain.ResearchRecord
	articles  map[string]*domain.Article
	knowledge map[string]*domain.KnowledgeEntry
	saveErr   error
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		research:  map[string]*domain.ResearchRecord{},
		articles:  map[string]*domain.Article{},
		knowledge: map[string]*domain.KnowledgeEntry{},
	}
}

func (f *fakeContent) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeContent) CreateResearch(_ context.Context, r *domain.ResearchRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	r.ID = f.nextID("research")
	cp := *r
	f.research[r.ID] = &cp
	return r.ID, nil
}

func (f *fakeContent) GetResearch(_ context.Context, id string) (*domain.ResearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.research[id]
	if !ok {
		return nil, &domain.EntityNotFoundError{Kind: "research", ID: id}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeContent) CreateArticle(_ context.Context, a *domain.Article) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	a.ID = f.nextID("article")
	cp := *a
	f.articles[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeContent) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (f *fakeContent) MarkArticleReviewed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	a.Reviewed = true
	return nil
}

func (f *fakeContent) MarkArticlePublished(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	a.Status = domain.ArticlePublished
	a.PublishedAt = &at
	return nil
}

func (f *fakeContent) CreateKnowledge(_ context.Context, k *domain.KnowledgeEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k.ID = f.nextID("knowledge")
	cp := *k
	f.knowledge[k.ID] = &cp
	return k.ID, nil
}

func (f *fakeContent) GetKnowledge(_ context.Context, id string) (*domain.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.knowledge[id]
	if !ok {
		return nil, &domain.EntityNotFoundError{Kind: "knowledge", ID: id}
	}
	return k, nil
}

var errBoom = errors.New("boom")
