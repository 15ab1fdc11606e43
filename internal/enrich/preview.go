package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	previewMaxBytes = 256 * 1024
	previewTimeout  = 10 * time.Second
)

var (
	urlRe   = regexp.MustCompile(`https?://[^\s<>"']+`)
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	descRe  = regexp.MustCompile(`(?is)<meta[^>]+(?:name|property)=["'](?:og:)?description["'][^>]+content=["']([^"']+)["']`)
	// Some pages put content before name/property.
	descAltRe = regexp.MustCompile(`(?is)<meta[^>]+content=["']([^"']+)["'][^>]+(?:name|property)=["'](?:og:)?description["']`)
)

// Preview is the extracted summary of one linked page.
type Preview struct {
	URL         string
	Title       string
	Description string
}

func (p Preview) String() string {
	if p.Description != "" {
		return fmt.Sprintf("%s: %s (%s)", p.Title, p.Description, p.URL)
	}
	return fmt.Sprintf("%s (%s)", p.Title, p.URL)
}

// Fetcher resolves link previews for URLs found in inbound messages. The
// plain HTTP path handles most pages; a Renderer can be plugged in for
// script-heavy sites.
type Fetcher struct {
	client   *http.Client
	renderer Renderer
	logger   *slog.Logger
}

// Renderer renders a page in a real browser and returns its HTML. Satisfied
// by the chromedp-backed Browser in this package.
type Renderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

type FetcherConfig struct {
	Renderer Renderer // optional
	Logger   *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: previewTimeout},
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
	}
}

// ExtractURLs returns the http(s) URLs found in text, in order, capped at max.
func ExtractURLs(text string, max int) []string {
	matches := urlRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) >= max {
			break
		}
	}
	return out
}

// Fetch builds a preview for one URL. Errors are returned so the caller can
// decide whether to drop the preview or surface the failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Preview, error) {
	html, err := f.fetchHTML(ctx, url)
	if err != nil {
		return nil, err
	}

	p := parsePreview(url, html)

	// An empty title usually means a client-rendered page. Retry through the
	// browser when one is available.
	if p.Title == "" && f.renderer != nil {
		rendered, rerr := f.renderer.RenderHTML(ctx, url)
		if rerr != nil {
			f.logger.Debug("browser render failed", "url", url, "err", rerr)
			return p, nil
		}
		p = parsePreview(url, rendered)
	}
	return p, nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Omnigate/0.1 (+link preview)")
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") {
		return "", fmt.Errorf("fetch %s: not html (%s)", url, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, previewMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

func parsePreview(url, html string) *Preview {
	p := &Preview{URL: url}
	if m := titleRe.FindStringSubmatch(html); m != nil {
		p.Title = collapse(m[1])
	}
	if m := descRe.FindStringSubmatch(html); m != nil {
		p.Description = collapse(m[1])
	} else if m := descAltRe.FindStringSubmatch(html); m != nil {
		p.Description = collapse(m[1])
	}
	if len(p.Description) > 300 {
		p.Description = p.Description[:300] + "..."
	}
	return p
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
