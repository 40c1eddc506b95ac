package rag_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/rag"
	"github.com/ramiqadoumi/go-content-flow/internal/vector"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ── mocks ───────────────────────────────────────────────────────────────────

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }

type recordingGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	opts    []llm.Options
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, opts llm.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	return g.reply, g.err
}

// scriptedIndex returns canned matches per collection.
type scriptedIndex struct {
	mu       sync.Mutex
	matches  map[string][]vector.Match
	errs     map[string]error
	requests []vector.SearchRequest
	upserts  []string
}

func (s *scriptedIndex) Search(_ context.Context, req vector.SearchRequest) ([]vector.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := s.errs[req.Collection]; err != nil {
		return nil, err
	}
	m, ok := s.matches[req.Collection]
	if !ok {
		return nil, vector.ErrCollectionNotFound
	}
	return m, nil
}

func (s *scriptedIndex) Upsert(_ context.Context, collection, id string, _ []float32, _ vector.Payload) error {
	s.upserts = append(s.upserts, collection+"/"+id)
	return nil
}

func (s *scriptedIndex) Delete(context.Context, string, string) error { return nil }

// mapResolver resolves "collection/id" keys present in docs.
type mapResolver struct {
	docs map[string]string
	err  error
}

func (m mapResolver) Resolve(_ context.Context, collection, id string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	text, ok := m.docs[collection+"/"+id]
	return text, ok, nil
}

func newEngine(idx rag.RetrievalIndex, res rag.ContentResolver, gen *recordingGenerator) *rag.Engine {
	return rag.NewEngine(fixedEmbedder{vec: []float32{1, 0}}, gen, idx, res, rag.WithLogger(discard))
}

// ── Query ───────────────────────────────────────────────────────────────────

func TestQuery_RanksAcrossCollections(t *testing.T) {
	idx := &scriptedIndex{matches: map[string][]vector.Match{
		domain.CollectionArticles:     {{ID: "a1", Score: 0.4}},
		domain.CollectionKnowledge:    {{ID: "k1", Score: 0.9}},
		domain.CollectionResearchData: {},
	}}
	res := mapResolver{docs: map[string]string{"articles/a1": "Article one", "knowledge_base/k1": "Knowledge one"}}
	gen := &recordingGenerator{reply: "the answer"}

	got, err := newEngine(idx, res, gen).Query(context.Background(), "what is go?", rag.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, "the answer", got.Answer)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "k1", got.Sources[0].DocumentID)
	assert.InDelta(t, 0.9, got.Sources[0].Score, 1e-9)
	assert.InDelta(t, 0.4, got.Sources[1].Score, 1e-9)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `answer the question: "what is go?"`)
	assert.Contains(t, gen.prompts[0], "[1] Knowledge one\n\n[2] Article one")
	assert.InDelta(t, 0.3, *gen.opts[0].Temperature, 1e-9)
	assert.Equal(t, 1000, gen.opts[0].MaxTokens)

	assert.Len(t, idx.requests, 3)
	for _, r := range idx.requests {
		assert.Equal(t, rag.DefaultLimit, r.Limit)
	}
}

func TestQuery_UnresolvedHitsDropped(t *testing.T) {
	idx := &scriptedIndex{matches: map[string][]vector.Match{
		domain.CollectionArticles: {{ID: "a1", Score: 0.9}, {ID: "gone", Score: 0.4}},
	}}
	res := mapResolver{docs: map[string]string{"articles/a1": "Article one"}}

	got, err := newEngine(idx, res, &recordingGenerator{}).
		Query(context.Background(), "q", rag.QueryOptions{Collections: []string{domain.CollectionArticles}})
	require.NoError(t, err)
	require.Len(t, got.Sources, 1)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestQuery_NoHitsStillGenerates(t *testing.T) {
	idx := &scriptedIndex{matches: map[string][]vector.Match{}}
	gen := &recordingGenerator{reply: "I don't know"}

	got, err := newEngine(idx, mapResolver{}, gen).Query(context.Background(), "q", rag.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, got.Sources)
	assert.Zero(t, got.Confidence)
	assert.Equal(t, "I don't know", got.Answer)
	assert.Len(t, gen.prompts, 1)
}

func TestQuery_BoundsSourcesAndOrders(t *testing.T) {
	matches := map[string][]vector.Match{}
	docs := map[string]string{}
	for ci, c := range domain.DefaultCollections {
		for i := 0; i < 4; i++ {
			id := fmt.Sprintf("%d-%d", ci, i)
			matches[c] = append(matches[c], vector.Match{ID: id, Score: 0.1 * float64(i+ci)})
			docs[c+"/"+id] = "doc " + id
		}
	}
	got, err := newEngine(&scriptedIndex{matches: matches}, mapResolver{docs: docs}, &recordingGenerator{}).
		Query(context.Background(), "q", rag.QueryOptions{})
	require.NoError(t, err)

	require.Len(t, got.Sources, rag.MaxSources)
	for i := 1; i < len(got.Sources); i++ {
		assert.GreaterOrEqual(t, got.Sources[i-1].Score, got.Sources[i].Score)
	}
	assert.LessOrEqual(t, got.Confidence, 1.0)
}

func TestQuery_ConfidenceCapped(t *testing.T) {
	idx := &scriptedIndex{matches: map[string][]vector.Match{"c": {{ID: "x", Score: 1.7}}}}
	got, err := newEngine(idx, mapResolver{docs: map[string]string{"c/x": "x"}}, &recordingGenerator{}).
		Query(context.Background(), "q", rag.QueryOptions{Collections: []string{"c"}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestQuery_OppositeVectorScoresZero(t *testing.T) {
	mem := vector.NewMemory()
	require.NoError(t, mem.Upsert(context.Background(), domain.CollectionKnowledge, "k1", []float32{-1, 0}, nil))
	res := mapResolver{docs: map[string]string{"knowledge_base/k1": "opposite"}}

	got, err := newEngine(mem, res, &recordingGenerator{reply: "a"}).
		Query(context.Background(), "q", rag.QueryOptions{Collections: []string{domain.CollectionKnowledge}})
	require.NoError(t, err)

	require.Len(t, got.Sources, 1)
	assert.Equal(t, 0.0, got.Sources[0].Score)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestConfidence_StaysInUnitRange(t *testing.T) {
	assert.Equal(t, 0.0, rag.Confidence([]domain.RetrievalHit{{Score: -0.5}, {Score: -1}}))
	assert.Equal(t, 1.0, rag.Confidence([]domain.RetrievalHit{{Score: 2}}))
	assert.Equal(t, 0.0, rag.Confidence(nil))
}

func TestQuery_PassesTags(t *testing.T) {
	idx := &scriptedIndex{matches: map[string][]vector.Match{"c": nil}}
	_, err := newEngine(idx, mapResolver{}, &recordingGenerator{}).
		Query(context.Background(), "q", rag.QueryOptions{Collections: []string{"c"}, Limit: 3, Tags: []string{"go"}})
	require.NoError(t, err)
	require.Len(t, idx.requests, 1)
	assert.Equal(t, []string{"go"}, idx.requests[0].Tags)
	assert.Equal(t, 3, idx.requests[0].Limit)
}

func TestQuery_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		embedder fixedEmbedder
		index    *scriptedIndex
		resolver mapResolver
		gen      *recordingGenerator
		want     string
	}{
		{
			name:     "embedding fails",
			embedder: fixedEmbedder{err: boom},
			index:    &scriptedIndex{},
			gen:      &recordingGenerator{},
			want:     "embed question: boom",
		},
		{
			name:     "search fails",
			embedder: fixedEmbedder{vec: []float32{1}},
			index:    &scriptedIndex{errs: map[string]error{domain.CollectionKnowledge: boom}},
			gen:      &recordingGenerator{},
			want:     "search knowledge_base: boom",
		},
		{
			name:     "resolver fails",
			embedder: fixedEmbedder{vec: []float32{1}},
			index:    &scriptedIndex{matches: map[string][]vector.Match{"c": {{ID: "x", Score: 1}}}},
			resolver: mapResolver{err: boom},
			gen:      &recordingGenerator{},
			want:     "resolve c/x: boom",
		},
		{
			name:     "generation fails",
			embedder: fixedEmbedder{vec: []float32{1}},
			index:    &scriptedIndex{matches: map[string][]vector.Match{}},
			gen:      &recordingGenerator{err: boom},
			want:     "generate answer: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := rag.NewEngine(tt.embedder, tt.gen, tt.index, tt.resolver, rag.WithLogger(discard))
			opts := rag.QueryOptions{}
			if tt.name == "resolver fails" {
				opts.Collections = []string{"c"}
			}
			_, err := e.Query(context.Background(), "q", opts)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	_, err := newEngine(&scriptedIndex{}, mapResolver{}, &recordingGenerator{}).Query(context.Background(), "  ", rag.QueryOptions{})
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

// ── GenerateWithContext ─────────────────────────────────────────────────────

func TestGenerateWithContext(t *testing.T) {
	long := strings.Repeat("x", 800)
	idx := &scriptedIndex{matches: map[string][]vector.Match{
		domain.CollectionArticles: {{ID: "a1", Score: 0.8}},
	}}
	gen := &recordingGenerator{reply: "generated"}

	got, err := newEngine(idx, mapResolver{docs: map[string]string{"articles/a1": long}}, gen).
		GenerateWithContext(context.Background(), "Write about go", []string{"go"})
	require.NoError(t, err)

	assert.Equal(t, "generated", got.Content)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	require.Len(t, gen.prompts, 2)
	enhanced := gen.prompts[1]
	assert.True(t, strings.HasPrefix(enhanced, "Write about go\n\nRelevant context for reference:\n[1] "+strings.Repeat("x", 500)+"\n\n"))
	assert.NotContains(t, enhanced, strings.Repeat("x", 501))
	assert.InDelta(t, 0.7, *gen.opts[1].Temperature, 1e-9)
	assert.Equal(t, 2500, gen.opts[1].MaxTokens)
}

// ── Index ───────────────────────────────────────────────────────────────────

func TestIndexAndSearchWithMemory(t *testing.T) {
	mem := vector.NewMemory()
	e := rag.NewEngine(fixedEmbedder{vec: []float32{0, 1}}, &recordingGenerator{reply: "ok"}, mem,
		mapResolver{docs: map[string]string{"knowledge_base/k": "Go\n\nA language"}}, rag.WithLogger(discard))

	require.NoError(t, e.Index(context.Background(), domain.CollectionKnowledge, "k", "Go", map[string]any{"tags": []string{"go"}}))

	got, err := e.Query(context.Background(), "go?", rag.QueryOptions{Tags: []string{"go"}})
	require.NoError(t, err)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, domain.CollectionKnowledge, got.Sources[0].Collection)
	assert.InDelta(t, 1.0, got.Confidence, 1e-6)

	require.NoError(t, e.Remove(context.Background(), domain.CollectionKnowledge, "k"))
	got, err = e.Query(context.Background(), "go?", rag.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, got.Sources)
}
