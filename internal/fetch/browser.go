package fetch

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the minimum extracted text length for an HTTP fetch to be
// trusted. Shorter pages are usually client-side rendered.
const MinContentLength = 500

// ShouldUseBrowser returns true if the extracted text is too short to be a
// server-rendered job page.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// Renderer renders pages in headless Chrome. It requires Chrome or Chromium on
// the host.
type Renderer struct {
	Timeout   time.Duration
	SettleFor time.Duration
	UserAgent string
	Logger    *log.Logger
}

// NewRenderer returns a renderer with default timings.
func NewRenderer(logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.Default()
	}
	return &Renderer{
		Timeout:   30 * time.Second,
		SettleFor: 2 * time.Second,
		UserAgent: DefaultUserAgent,
		Logger:    logger,
	}
}

// Render navigates to url and returns the rendered outer HTML.
func (r *Renderer) Render(ctx context.Context, url string) (*Result, error) {
	r.Logger.Printf("[BROWSER] Rendering %s", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(r.UserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, r.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(r.SettleFor),
		// Cookie walls hide the job text on most German boards.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`#ccmgt_explicit_accept, button[id*="accept"], button[data-testid*="accept"]`,
				chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &Error{URL: url, Message: "browser rendering failed", Retryable: true, Cause: err}
	}

	r.Logger.Printf("[BROWSER] Rendered %d bytes from %s", len(html), url)
	return &Result{URL: url, HTML: html, StatusCode: 200, Rendered: true}, nil
}
