package omr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"brickkit/internal/catalog"
	"brickkit/internal/config"
	"brickkit/internal/logging"
	"brickkit/internal/services"
)

const rowsScript = `() => {
	const rows = [];
	for (const row of document.querySelectorAll('table tbody tr')) {
		const cells = row.querySelectorAll('td');
		if (cells.length < 5) continue;
		const link = cells[2].querySelector('a') || row.querySelector('a');
		rows.push({
			set_number: (cells[1].textContent || '').trim(),
			name: (cells[2].textContent || '').trim(),
			theme: (cells[3].textContent || '').trim(),
			year_text: (cells[4].textContent || '').trim(),
			detail_url: link ? link.href : '',
		});
	}
	return rows;
}`

const linksScript = `() => {
	const links = [];
	for (const a of document.querySelectorAll('a[href*="download"], a[href*=".mpd"], a[href*=".zip"]')) {
		links.push({ href: a.href || '', text: (a.textContent || '').trim() });
	}
	return links;
}`

// resultSelector appears once the search results table has rows.
const resultSelector = "table tbody tr"

// Provider implements catalog.Provider against the OMR website.
type Provider struct {
	cfg    config.Catalog
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// New constructs a provider. The browser is started on first use.
func New(cfg config.Catalog, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// SearchURL returns the results page URL for query.
func SearchURL(base, query string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	values := parsed.Query()
	values.Set("search", query)
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

// Search returns the candidates listed for query. A page without result rows
// yields an empty slice, not an error.
func (p *Provider) Search(ctx context.Context, query string) ([]catalog.Candidate, error) {
	target, err := SearchURL(p.cfg.SearchURL, strings.TrimSpace(query))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "search", "build url", "invalid catalog.search_url", err)
	}
	raw, err := p.extract(ctx, target, resultSelector, rowsScript)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "search", "scrape results", query, err)
	}
	if raw == nil {
		return nil, nil
	}
	candidates, err := DecodeRows(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "search", "decode results", query, err)
	}
	logging.WithContext(ctx, p.logger).Debug("catalogue search complete",
		logging.String("query", query),
		logging.Int("results", len(candidates)),
	)
	return candidates, nil
}

// ListVariants returns the download links on a model detail page.
func (p *Provider) ListVariants(ctx context.Context, detailRef string) ([]catalog.Variant, error) {
	if strings.TrimSpace(detailRef) == "" {
		return nil, services.Wrap(services.ErrValidation, "selection", "list variants", "model has no detail page", nil)
	}
	raw, err := p.extract(ctx, detailRef, "", linksScript)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "selection", "scrape variants", detailRef, err)
	}
	variants, err := DecodeLinks(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "selection", "decode variants", detailRef, err)
	}
	return variants, nil
}

// extract opens target in a fresh page and evaluates script. When waitFor is
// set and never appears within the navigation timeout, extract returns nil.
func (p *Provider) extract(ctx context.Context, target, waitFor, script string) ([]byte, error) {
	browser, err := p.ensureBrowser()
	if err != nil {
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	timeout := p.navigationTimeout()
	if err := page.Context(ctx).Timeout(timeout).Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.Context(ctx).Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for page load: %w", err)
	}
	if waitFor != "" {
		if _, err := page.Context(ctx).Timeout(timeout).Element(waitFor); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		}
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate extraction script: %w", err)
	}
	if res == nil {
		return nil, errors.New("evaluate extraction script: empty result")
	}
	return res.Value.MarshalJSON()
}

func (p *Provider) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		if _, err := p.browser.Version(); err == nil {
			return p.browser, nil
		}
		p.logger.Warn("browser connection lost; relaunching")
		_ = p.browser.Close()
		p.browser = nil
	}

	l := launcher.New().Headless(p.cfg.Headless)
	if bin := strings.TrimSpace(p.cfg.BrowserBin); bin != "" {
		l = l.Bin(bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "search", "launch browser", "set catalog.browser_bin to a Chromium binary", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	p.browser = browser
	p.launcher = l
	p.logger.Info("browser started", logging.Bool("headless", p.cfg.Headless))
	return browser, nil
}

func (p *Provider) navigationTimeout() time.Duration {
	if p.cfg.NavigationTimeoutSeconds > 0 {
		return time.Duration(p.cfg.NavigationTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// Close shuts the browser down. It is safe to call more than once.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.browser != nil {
		err = p.browser.Close()
		p.browser = nil
	}
	if p.launcher != nil {
		p.launcher.Cleanup()
		p.launcher = nil
	}
	return err
}

// BrowserAvailable reports the browser binary the provider would launch.
func BrowserAvailable(configured string) (string, bool) {
	if bin := strings.TrimSpace(configured); bin != "" {
		return bin, true
	}
	return launcher.LookPath()
}
