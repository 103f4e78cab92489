package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<div class="result results_links"><h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go <b>Programming</b> Language</a></h2>
<a class="result__snippet">Go is an open source programming language.</a></div>
<div class="result"><a class="result__a" href="https://pkg.go.dev/">Go Packages</a><a class="result__snippet">Discover packages.</a></div>
<div class="result"><a class="result__a" href="https://example.com/3">Three</a></div>
<div class="result"><a class="result__a" href="https://example.com/4">Four</a></div>
</body></html>`

func TestSearchWeb(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, searchPage)
	}))
	defer srv.Close()

	r := NewRegistry()
	RegisterWeb(r, WebOptions{SearchURL: srv.URL, Client: srv.Client()})

	out := r.Execute(context.Background(), "search_web", map[string]any{"query": "golang news"}, nil)
	assert.Equal(t, "golang news", gotQuery)

	results := strings.Split(out, "\n---\n")
	require.Len(t, results, 3)
	assert.Equal(t, "Title: The Go Programming Language\nLink: https://go.dev/\nSnippet: Go is an open source programming language.", results[0])
	assert.Contains(t, results[1], "Link: https://pkg.go.dev/")
	assert.NotContains(t, out, "Four")
}

func TestScrapeWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/long":
			fmt.Fprintf(w, "<p>%s</p>", strings.Repeat("a", 20000))
		default:
			fmt.Fprint(w, `<html><head><style>body{}</style><script>alert(1)</script></head>
<body><h1>Title</h1><p>First paragraph.</p></body></html>`)
		}
	}))
	defer srv.Close()

	r := NewRegistry()
	RegisterWeb(r, WebOptions{Client: srv.Client()})
	ctx := context.Background()

	assert.Equal(t, "Title\nFirst paragraph.", r.Execute(ctx, "scrape_website", map[string]any{"url": srv.URL}, nil))
	assert.Len(t, r.Execute(ctx, "scrape_website", map[string]any{"url": srv.URL + "/long"}, nil), scrapeLimit)

	out := r.Execute(ctx, "scrape_website", map[string]any{"url": srv.URL + "/missing"}, nil)
	assert.Equal(t, "Error executing 'scrape_website': scrape: HTTP 404", out)
}
