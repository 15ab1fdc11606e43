package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractURLs_OrderAndDedup(t *testing.T) {
	text := "see https://a.example/x and https://b.example then https://a.example/x again"
	urls := ExtractURLs(text, 5)
	if len(urls) != 2 {
		t.Fatalf("expected 2 unique URLs, got %v", urls)
	}
	if urls[0] != "https://a.example/x" || urls[1] != "https://b.example" {
		t.Fatalf("order not preserved: %v", urls)
	}
}

func TestExtractURLs_TrimsTrailingPunctuation(t *testing.T) {
	urls := ExtractURLs("check https://example.com/page.", 3)
	if len(urls) != 1 || urls[0] != "https://example.com/page" {
		t.Fatalf("trailing dot not trimmed: %v", urls)
	}
}

func TestExtractURLs_Cap(t *testing.T) {
	text := "https://a.example https://b.example https://c.example https://d.example"
	urls := ExtractURLs(text, 2)
	if len(urls) != 2 {
		t.Fatalf("expected cap of 2, got %v", urls)
	}
}

func TestExtractURLs_NoURLs(t *testing.T) {
	if urls := ExtractURLs("plain text, nothing linked", 3); len(urls) != 0 {
		t.Fatalf("expected none, got %v", urls)
	}
}

func TestParsePreview_TitleAndDescription(t *testing.T) {
	html := `<html><head>
		<title>  My   Page  </title>
		<meta property="og:description" content="A fine page">
	</head></html>`
	p := parsePreview("https://example.com", html)
	if p.Title != "My Page" {
		t.Fatalf("expected collapsed title, got %q", p.Title)
	}
	if p.Description != "A fine page" {
		t.Fatalf("expected description, got %q", p.Description)
	}
}

func TestParsePreview_ContentBeforeName(t *testing.T) {
	html := `<meta content="reversed order" name="description">`
	p := parsePreview("https://example.com", html)
	if p.Description != "reversed order" {
		t.Fatalf("expected description from reversed attributes, got %q", p.Description)
	}
}

func TestParsePreview_LongDescriptionTruncated(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "0123456789"
	}
	html := fmt.Sprintf(`<meta name="description" content="%s">`, long)
	p := parsePreview("https://example.com", html)
	if len(p.Description) != 303 {
		t.Fatalf("expected 300 chars plus ellipsis, got %d", len(p.Description))
	}
}

func TestFetch_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<title>Served Page</title>`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Logger: slog.Default()})
	p, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Title != "Served Page" {
		t.Fatalf("expected title, got %q", p.Title)
	}
}

func TestFetch_NonHTMLRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Logger: slog.Default()})
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for non-html content type")
	}
}

type fakeRenderer struct{ html string }

func (r fakeRenderer) RenderHTML(ctx context.Context, url string) (string, error) {
	return r.html, nil
}

func TestFetch_EmptyTitleFallsBackToRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<div id="app"></div>`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		Renderer: fakeRenderer{html: `<title>Rendered Title</title>`},
		Logger:   slog.Default(),
	})
	p, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Title != "Rendered Title" {
		t.Fatalf("expected browser-rendered title, got %q", p.Title)
	}
}

func TestPreviewString_WithAndWithoutDescription(t *testing.T) {
	full := Preview{URL: "https://x", Title: "T", Description: "D"}
	if got := full.String(); got != "T: D (https://x)" {
		t.Fatalf("unexpected: %q", got)
	}
	bare := Preview{URL: "https://x", Title: "T"}
	if got := bare.String(); got != "T (https://x)" {
		t.Fatalf("unexpected: %q", got)
	}
}
