package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// maxFetchBytes caps how much of a response body is returned as a
// step result.
const maxFetchBytes = 1 << 20

// WebBackend serves plain HTTP fetches and rendered-page fetches via a
// headless browser. The browser is launched lazily on the first render
// and reused afterwards.
type WebBackend struct {
	Client *http.Client

	mu      sync.Mutex
	browser *rod.Browser
}

// NewWebBackend creates a web backend using the default HTTP client.
func NewWebBackend() *WebBackend {
	return &WebBackend{Client: http.DefaultClient}
}

// Invoke handles fetch (plain GET) and render (headless browser).
func (w *WebBackend) Invoke(ctx context.Context, inv Invocation) (any, error) {
	url, err := stringParam(inv.Params, "url")
	if err != nil {
		return nil, err
	}

	switch inv.Operation {
	case "fetch":
		return w.fetch(ctx, url)
	case "render":
		return w.render(ctx, url)
	default:
		return nil, NonRetryable(fmt.Errorf("unknown web operation: %s", inv.Operation))
	}
}

func (w *WebBackend) fetch(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("bad url %q: %w", url, err))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		// Client errors won't heal on retry; server errors might.
		if resp.StatusCode < 500 {
			return nil, NonRetryable(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// render loads the page in a headless browser and returns the HTML
// after scripts ran. Used for pages that are empty without JS.
func (w *WebBackend) render(ctx context.Context, url string) (any, error) {
	browser, err := w.getBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open page %s: %w", url, err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("page html: %w", err)
	}
	if len(html) > maxFetchBytes {
		html = html[:maxFetchBytes]
	}
	return html, nil
}

func (w *WebBackend) getBrowser() (*rod.Browser, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.browser != nil {
		return w.browser, nil
	}

	path, _ := launcher.LookPath()
	controlURL, err := launcher.New().Bin(path).Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	w.browser = browser
	return browser, nil
}

// Close shuts down the headless browser if one was launched.
func (w *WebBackend) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.browser == nil {
		return nil
	}
	err := w.browser.Close()
	w.browser = nil
	return err
}
