package sources_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/sources"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Tech</title>
<item><title>Go 1.24 released</title><link>https://news.test/go</link><description>The Go team shipped a release.</description><pubDate>Mon, 10 Feb 2025 10:00:00 GMT</pubDate></item>
<item><title>Rust news</title><link>https://news.test/rust</link><description>Borrow checker improvements.</description></item>
<item><title>Kubernetes</title><link>https://news.test/k8s</link><description>Written in go, mostly.</description></item>
</channel></rss>`

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "golang concurrency", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[
			{"url":"%[1]s/page/1","title":"One","content":"first","score":2.5},
			{"url":"%[1]s/page/2","title":"Two","content":"second"},
			{"url":"%[1]s/missing","title":"Gone","content":"third"}
		]}`, base)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, rssFeed)
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Page %s</title><script>var x = 1;</script></head>
<body><nav>menu</nav><article><h1>Heading %[1]s</h1>
<p>Body   text
of page.</p></article><footer>foot</footer></body></html>`, strings.TrimPrefix(r.URL.Path, "/page/"))
	})
	srv := httptest.NewServer(mux)
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newService(srv *httptest.Server, feeds ...string) *sources.Service {
	return sources.NewService(srv.URL,
		sources.WithHTTPClient(srv.Client()),
		sources.WithFeeds(feeds),
		sources.WithLogger(discard),
	)
}

func TestSearchWeb(t *testing.T) {
	srv := newFixtureServer(t)
	docs, err := newService(srv).SearchWeb(context.Background(), "golang concurrency", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "One", docs[0].Title)
	assert.Equal(t, domain.SourceWeb, docs[0].SourceType)
	assert.InDelta(t, 2.5, docs[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.5, docs[1].RelevanceScore, 1e-9)
}

func TestAggregateNews_FiltersByTopic(t *testing.T) {
	srv := newFixtureServer(t)
	svc := newService(srv, srv.URL+"/feed.xml", srv.URL+"/not-a-feed")

	docs, err := svc.AggregateNews(context.Background(), []string{"Go"}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://news.test/go", docs[0].URL)
	assert.Equal(t, "https://news.test/k8s", docs[1].URL)
	assert.Equal(t, domain.SourceNews, docs[0].SourceType)
	assert.Equal(t, 2025, docs[0].ExtractedAt.Year())

	all, err := svc.AggregateNews(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFetchPage_ExtractsMainText(t *testing.T) {
	srv := newFixtureServer(t)
	page, err := newService(srv).FetchPage(context.Background(), srv.URL+"/page/7")
	require.NoError(t, err)
	assert.Equal(t, "Heading 7", page.Title)
	assert.Equal(t, "Heading 7 Body text of page.", page.Content)
	assert.NotContains(t, page.Content, "menu")
}

func TestDeepResearch(t *testing.T) {
	srv := newFixtureServer(t)
	svc := newService(srv, srv.URL+"/feed.xml")

	bundle, err := svc.DeepResearch(context.Background(), "golang", []string{"concurrency"})
	require.NoError(t, err)
	assert.Len(t, bundle.Web, 3)
	assert.Empty(t, bundle.News)
	// the third result 404s and is skipped
	require.Len(t, bundle.Pages, 2)
	assert.Equal(t, "Heading 1", bundle.Pages[0].Title)
	assert.Len(t, bundle.Documents(), 5)
}
