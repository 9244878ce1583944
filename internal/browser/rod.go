package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/yourorg/trainlink/internal/config"
)

// Rod is an Adapter backed by a Chromium instance over the DevTools protocol.
// It attaches to control_url when set and launches a browser otherwise.
type Rod struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
	page     *rod.Page
	url      string

	closePage func(*rod.Page) error
}

func NewRod(cfg config.BrowserConfig, logger *slog.Logger) *Rod {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rod{
		cfg:       cfg,
		logger:    logger,
		closePage: func(p *rod.Page) error { return p.Close() },
	}
}

func (r *Rod) timeout() time.Duration {
	if r.cfg.Timeout <= 0 {
		return 10 * time.Second
	}
	return r.cfg.Timeout
}

// connectLocked makes sure a healthy browser connection exists.
func (r *Rod) connectLocked(ctx context.Context) error {
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		r.logger.Warn("stale browser connection, reconnecting")
		r.dropLocked()
	}

	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(r.cfg.Headless)
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		r.launched = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	r.browser = b
	return nil
}

func (r *Rod) dropLocked() {
	_ = r.resetPageLocked()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.launched != nil {
		r.launched.Cleanup()
		r.launched = nil
	}
}

func (r *Rod) pageAliveLocked() bool {
	if r.page == nil {
		return false
	}
	_, err := r.page.Info()
	return err == nil
}

// openLocked opens url in the helper tab, creating the tab if needed.
func (r *Rod) openLocked(ctx context.Context, url string) error {
	if err := r.connectLocked(ctx); err != nil {
		return err
	}
	if r.pageAliveLocked() {
		if r.url == url {
			return nil
		}
		if err := r.page.Context(ctx).Timeout(r.timeout()).Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		r.url = url
		return nil
	}
	page, err := r.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open tab %s: %w", url, err)
	}
	if err := page.Context(ctx).Timeout(r.timeout()).WaitLoad(); err != nil {
		r.logger.Debug("helper page load incomplete", "url", url, "error", err)
	}
	r.page = page
	r.url = url
	return nil
}

func (r *Rod) EnsureOpen(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return withRetry(ctx, r.cfg.Retries, r.logger, r.resetPageLocked, func() error {
		return r.openLocked(ctx, url)
	})
}

// ExecuteScript evaluates js, a function expression, with args and returns
// its JSON value. A failed call reopens the last URL before the next attempt.
func (r *Rod) ExecuteScript(ctx context.Context, js string, args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.url == "" {
		return nil, fmt.Errorf("%w: no helper tab open", ErrUnavailable)
	}
	var out any
	err := withRetry(ctx, r.cfg.Retries, r.logger, r.reopen(ctx), func() error {
		if !r.pageAliveLocked() {
			return errors.New("helper tab is gone")
		}
		res, err := r.page.Context(ctx).Timeout(r.timeout()).Evaluate(rod.Eval(js, args...))
		if err != nil {
			return err
		}
		out = res.Value.Val()
		return nil
	})
	return out, err
}

func (r *Rod) reopen(ctx context.Context) func() error {
	url := r.url
	return func() error {
		_ = r.resetPageLocked()
		return r.openLocked(ctx, url)
	}
}

// resetPageLocked closes the helper tab, if any, so the next attempt opens a
// fresh one. A tab that fails to close is dropped anyway.
func (r *Rod) resetPageLocked() error {
	if r.page == nil {
		return nil
	}
	if err := r.closePage(r.page); err != nil {
		r.logger.Debug("close helper tab failed", "error", err)
	}
	r.page = nil
	return nil
}

func (r *Rod) WindowRect(ctx context.Context) (Rect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pageAliveLocked() {
		return Rect{}, fmt.Errorf("%w: no helper tab open", ErrUnavailable)
	}
	b, err := r.page.Context(ctx).GetWindow()
	if err != nil {
		return Rect{}, err
	}
	return Rect{X: deref(b.Left), Y: deref(b.Top), Width: deref(b.Width), Height: deref(b.Height)}, nil
}

func (r *Rod) SetWindowRect(ctx context.Context, rect Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pageAliveLocked() {
		return fmt.Errorf("%w: no helper tab open", ErrUnavailable)
	}
	return r.page.Context(ctx).SetWindow(&proto.BrowserBounds{
		Left:        &rect.X,
		Top:         &rect.Y,
		Width:       &rect.Width,
		Height:      &rect.Height,
		WindowState: proto.BrowserWindowStateNormal,
	})
}

func (r *Rod) IsAlive(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageAliveLocked()
}

func (r *Rod) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// Close closes the helper tab and, when this process launched the browser,
// the browser itself.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.page != nil {
		err = r.closePage(r.page)
		r.page = nil
	}
	r.url = ""
	if r.launched != nil {
		r.dropLocked()
	}
	return err
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
