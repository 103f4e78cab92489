package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultSearchURL = "https://html.duckduckgo.com/html/"
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	scrapeLimit      = 10000
	searchResults    = 3
)

type WebOptions struct {
	Timeout   time.Duration
	SearchURL string
	Client    *http.Client
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
}

func RegisterWeb(r *Registry, opts WebOptions) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SearchURL == "" {
		opts.SearchURL = defaultSearchURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	r.MustRegister(&Tool{
		Name:        "search_web",
		Description: "Searches the web and returns the top results with title, link and snippet.",
		Schema: Schema{
			Required:   []string{"query"},
			Properties: map[string]Property{"query": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			body, err := fetch(ctx, opts, opts.SearchURL+"?q="+url.QueryEscape(args.String("query")))
			if err != nil {
				return "", fmt.Errorf("search: %w", err)
			}
			results, err := parseSearchResults(body, searchResults)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No results found.", nil
			}
			formatted := make([]string, 0, len(results))
			for _, res := range results {
				formatted = append(formatted, fmt.Sprintf("Title: %s\nLink: %s\nSnippet: %s", res.Title, res.URL, res.Snippet))
			}
			return strings.Join(formatted, "\n---\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "scrape_website",
		Description: "Fetches a web page and returns its readable text.",
		Schema: Schema{
			Required:   []string{"url"},
			Properties: map[string]Property{"url": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			body, err := fetch(ctx, opts, args.String("url"))
			if err != nil {
				return "", fmt.Errorf("scrape: %w", err)
			}
			text, err := pageText(body)
			if err != nil {
				return "", err
			}
			if len(text) > scrapeLimit {
				text = text[:scrapeLimit]
			}
			return text, nil
		},
	})
}

func fetch(ctx context.Context, opts WebOptions, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

func parseSearchResults(body string, max int) ([]searchResult, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if res := extractResult(n); res.URL != "" && res.Title != "" {
				results = append(results, res)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractResult(n *html.Node) searchResult {
	var res searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				res.URL = attr(n, "href")
				res.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				res.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if rest, ok := strings.CutPrefix(res.URL, "//duckduckgo.com/l/?uddg="); ok {
		if decoded, err := url.QueryUnescape(rest); err == nil {
			if i := strings.Index(decoded, "&"); i > 0 {
				decoded = decoded[:i]
			}
			res.URL = decoded
		}
	}
	return res
}

// pageText returns the visible text of a page, one trimmed line per text run.
func pageText(body string) (string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				for _, phrase := range strings.Split(line, "  ") {
					if p := strings.TrimSpace(phrase); p != "" {
						lines = append(lines, p)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(lines, "\n"), nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
