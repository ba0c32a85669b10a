// internal/browser/cdp_driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cdpDriver drives one Chrome tab over the DevTools protocol. Each driver owns
// its own browser process, so sessions never share cookies or storage.
type cdpDriver struct {
	ctx         context.Context // tab context; carries the CDP target
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	interceptOnce sync.Once
	closeOnce     sync.Once
	closeErr      error
}

var _ Driver = (*cdpDriver)(nil)

// LaunchChrome starts a fresh Chrome process and returns a Driver for its first
// tab. ctx bounds the launch only; the browser lives until Close.
func LaunchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	logger = logger.Named("chrome")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), DefaultAllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(logger.Sugar().Debugf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run allocates the browser. It must run on the tab context
	// itself or the process dies with the launch deadline.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errc:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chrome launch aborted: %w", ctx.Err())
	}

	logger.Debug("Chrome launched", zap.Bool("headless", cfg.Headless))
	return &cdpDriver{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// run executes actions on the tab, bounded by ctx as well as the tab lifetime.
func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if d.ctx.Err() != nil {
		return ErrSessionClosed
	}
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.ctx.Err() != nil {
			// The browser went away underneath the call.
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return err
	}
	return nil
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *cdpDriver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

func (d *cdpDriver) DeleteCookies(ctx context.Context) error {
	return d.run(ctx, network.ClearBrowserCookies())
}

func (d *cdpDriver) Find(ctx context.Context, ref locator.Ref) ([]Element, error) {
	var (
		nodes []*cdp.Node
		query chromedp.Action
	)
	if ref.IsCSS() {
		query = chromedp.Nodes(ref.Value, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))
	} else {
		xpath, err := ref.AsXPath()
		if err != nil {
			return nil, err
		}
		query = chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))
	}

	if err := d.run(ctx, query); err != nil {
		return nil, fmt.Errorf("query %s: %w", ref, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		elements = append(elements, Element{NodeID: n.NodeID, Locator: ref, Index: len(elements)})
	}
	return elements, nil
}

// callOn runs a page function with `this` bound to el and decodes its result into res.
func (d *cdpDriver) callOn(ctx context.Context, el Element, fn string, res interface{}) error {
	return d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(el.NodeID).Do(c)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStaleElement, el, err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(c) }()

		ret, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("page function failed on %s: %s", el, exc.Text)
		}
		if res == nil || ret == nil || len(ret.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(ret.Value), res)
	}))
}

func (d *cdpDriver) Inspect(ctx context.Context, el Element) (ElementState, error) {
	var state ElementState
	err := d.callOn(ctx, el, inspectFunction, &state)
	return state, err
}

func (d *cdpDriver) OuterHTML(ctx context.Context, el Element) (string, error) {
	var html string
	err := d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(el.NodeID).Do(c)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStaleElement, el, err)
		}
		return nil
	}))
	return html, err
}

type clickTarget struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	ObstructedBy string  `json:"obstructedBy"`
}

func (d *cdpDriver) Click(ctx context.Context, el Element) error {
	var target clickTarget
	if err := d.callOn(ctx, el, clickTargetFunction, &target); err != nil {
		return err
	}
	if target.Width <= 0 || target.Height <= 0 {
		return fmt.Errorf("element %s has no clickable area", el)
	}
	if target.ObstructedBy != "" {
		return &ClickInterceptedError{Element: el.String(), By: target.ObstructedBy}
	}
	return d.run(ctx, chromedp.MouseClickXY(target.X, target.Y))
}

func (d *cdpDriver) ScriptClick(ctx context.Context, el Element) error {
	return d.callOn(ctx, el, scriptClickFunction, nil)
}

func (d *cdpDriver) Clear(ctx context.Context, el Element) error {
	return d.callOn(ctx, el, clearFunction, nil)
}

func (d *cdpDriver) SendKeys(ctx context.Context, el Element, text string) error {
	var focused bool
	if err := d.callOn(ctx, el, focusFunction, &focused); err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("element %s did not take focus", el)
	}
	return d.run(ctx, chromedp.KeyEvent(text))
}

func (d *cdpDriver) PressKey(ctx context.Context, key string) error {
	return d.run(ctx, chromedp.KeyEvent(key))
}

func (d *cdpDriver) IsFocused(ctx context.Context, el Element) (bool, error) {
	var focused bool
	err := d.callOn(ctx, el, isFocusedFunction, &focused)
	return focused, err
}

func (d *cdpDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	return d.run(ctx, chromedp.Evaluate(script, res))
}

func (d *cdpDriver) FailRequests(ctx context.Context, patterns []string) error {
	reqPatterns := make([]*fetch.RequestPattern, 0, len(patterns))
	for _, p := range patterns {
		reqPatterns = append(reqPatterns, &fetch.RequestPattern{URLPattern: p})
	}

	d.interceptOnce.Do(func() {
		chromedp.ListenTarget(d.ctx, func(ev interface{}) {
			paused, ok := ev.(*fetch.EventRequestPaused)
			if !ok {
				return
			}
			// Listeners must not block the event loop.
			go func() {
				c := chromedp.FromContext(d.ctx)
				if c == nil || c.Target == nil {
					return
				}
				execCtx := cdp.WithExecutor(d.ctx, c.Target)
				if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonConnectionFailed).Do(execCtx); err != nil {
					d.logger.Debug("Failed to abort intercepted request", zap.String("url", paused.Request.URL), zap.Error(err))
					return
				}
				d.logger.Debug("Aborted request", zap.String("url", paused.Request.URL))
			}()
		})
	})

	return d.run(ctx, fetch.Enable().WithPatterns(reqPatterns))
}

// Close shuts the browser down. Safe to call more than once.
func (d *cdpDriver) Close() error {
	d.closeOnce.Do(func() {
		if err := chromedp.Cancel(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.closeErr = fmt.Errorf("failed to close chrome: %w", err)
		}
		d.cancel()
		d.allocCancel()
	})
	return d.closeErr
}
