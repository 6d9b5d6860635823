package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"venturedesk/internal/infra/config"
)

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// blockedResourcePatterns keeps page loads cheap; only the DOM matters here.
var blockedResourcePatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.mp4", "*.webm",
}

// extractScript pulls the readable text out of a rendered page. Runs inside
// the page after load.
const extractScript = `(() => {
	for (const el of document.querySelectorAll('script,style,noscript,svg')) el.remove();
	const main = document.querySelector('main,article') || document.body;
	return (main ? main.innerText : '').replace(/\n{3,}/g, '\n\n').trim();
})()`

// ChromeDPExtractBackend renders pages in a real browser before extracting
// text, for sites that build their content with client-side scripts.
type ChromeDPExtractBackend struct {
	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

// NewChromeDPExtractBackend launches a local Chrome (or connects to a remote
// CDP endpoint) for rendered extraction.
func NewChromeDPExtractBackend(cfg config.BrowserConfig, logger *slog.Logger) (*ChromeDPExtractBackend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b := &ChromeDPExtractBackend{timeout: timeout, logger: logger}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("chromedp connecting to remote browser", "url", cfg.RemoteURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 720),
		)
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("chromedp launching local browser", "headless", cfg.Headless)
	}

	b.browserCtx, b.cancel = chromedp.NewContext(allocCtx)

	// Start the browser eagerly so config errors surface at startup. The
	// session binds to the context of the first Run, so no timeout wrapper.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(b.browserCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(timeout):
		b.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", timeout)
	}

	return b, nil
}

func (b *ChromeDPExtractBackend) Name() string { return "chromedp" }

// Extract implements ExtractBackend. Navigation and script evaluation run in
// a fresh tab bounded by the configured timeout.
func (b *ChromeDPExtractBackend) Extract(ctx context.Context, pageURL string) (string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()

	var title, text string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetBlockedURLs(blockedResourcePatterns),
		emulation.SetUserAgentOverride(browserUserAgent),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Evaluate(extractScript, &text),
	)
	if err != nil {
		return "", "", fmt.Errorf("render page: %w", err)
	}
	return title, text, nil
}

// Close shuts the browser down.
func (b *ChromeDPExtractBackend) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}
