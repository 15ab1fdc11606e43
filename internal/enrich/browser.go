package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Browser renders pages with headless Chrome for previews that plain HTTP
// cannot resolve (client-side rendered sites).
type Browser struct {
	profileDir string
	logger     *slog.Logger
}

type BrowserConfig struct {
	ProfileDir string // Chrome user data directory
	Logger     *slog.Logger
}

func NewBrowser(cfg BrowserConfig) *Browser {
	return &Browser{
		profileDir: cfg.ProfileDir,
		logger:     cfg.Logger,
	}
}

// RenderHTML navigates to the URL, waits for the body, and returns the
// rendered document. Each call gets its own Chrome instance so a wedged
// page cannot poison later previews.
func (b *Browser) RenderHTML(ctx context.Context, url string) (string, error) {
	if b.profileDir != "" {
		if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
			b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)
	if b.profileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.profileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, 30*time.Second)
	defer timeoutCancel()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}
