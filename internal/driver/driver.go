// Package driver is a thin capability layer over a remote browser
// reached via the Chrome DevTools Protocol: navigation, typed input,
// clicks, file upload, event subscription, and editor-frame-scoped
// queries, each bounded by an explicit per-operation timeout.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/errs"
	"github.com/devconsole/naverpost-agent/internal/netutil"
)

// Driver is the capability layer every core component shares for the
// duration of one run. Only the Run Orchestrator is permitted to tear
// it down.
type Driver struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	editorFrame *cdp.Node

	subs *subscriptions
}

// Options configures how the browser is reached.
type Options struct {
	// RemoteDebuggingAddr, if set, attaches to an already-running Chrome
	// via its DevTools endpoint (host:port) instead of launching a new
	// ExecAllocator-managed process.
	RemoteDebuggingAddr string
	Headless            bool
	ExecPath            string
}

// New creates a Driver attached to a fresh browser context. Callers must
// call Close when the run ends.
func New(parent context.Context, opts Options) (*Driver, error) {
	allocCtx := parent
	var allocCancel context.CancelFunc = func() {}

	if opts.RemoteDebuggingAddr != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, "ws://"+opts.RemoteDebuggingAddr)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-client-side-phishing-detection", true),
			chromedp.Flag("enable-automation", true),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, allocOpts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		allocCancel()
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	d := &Driver{
		ctx: ctx,
		cancel: func() {
			cancel()
			allocCancel()
		},
	}
	d.subs = newSubscriptions(ctx)
	return d, nil
}

// Close tears down the browser context. Only the Run Orchestrator calls
// this.
func (d *Driver) Close() {
	d.cancel()
}

// withTimeout runs fn against a context bounded by operation's configured
// timeout tier, translating context.DeadlineExceeded into a typed
// OPERATION_TIMEOUT error.
func (d *Driver) withTimeout(operation string, fn func(ctx context.Context) error) error {
	budget := netutil.OperationTimeout(operation)
	ctx, cancel := context.WithTimeout(d.ctx, budget)
	defer cancel()

	err := fn(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return &errs.OperationTimeoutError{Operation: operation, Millis: budget.Milliseconds()}
	}
	return err
}

// Navigate loads url in the top-level page.
func (d *Driver) Navigate(url string) error {
	return d.withTimeout("navigate", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Navigate(url))
	})
}

// CurrentURL returns the top-level page's current location.
func (d *Driver) CurrentURL() (string, error) {
	var url string
	err := d.withTimeout("currentUrl", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Location(&url))
	})
	return url, err
}

// PressKey dispatches a single named key (e.g. "Escape", "Enter",
// "ArrowDown") to whichever element currently has focus.
func (d *Driver) PressKey(key string) error {
	return d.withTimeout("pressKey", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.KeyEvent(key))
	})
}

// Screenshot captures the full page as JPEG, for debug artifact
// capture. The raw capture is PNG; JPEG keeps failure bundles small.
func (d *Driver) Screenshot() ([]byte, error) {
	var png []byte
	err := d.withTimeout("screenshot", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.FullScreenshot(&png, 100))
	})
	if err != nil {
		return nil, err
	}
	img, decodeErr := decodePNG(png)
	if decodeErr != nil {
		return png, nil // fall back to raw PNG bytes rather than fail debug capture
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return png, nil
	}
	return buf.Bytes(), nil
}

func decodePNG(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// HTMLSnapshot returns the outer HTML of the current editor frame (or
// the top-level page if no frame has been resolved yet), for debug
// artifact capture.
func (d *Driver) HTMLSnapshot() (string, error) {
	var html string
	err := d.withTimeout("htmlSnapshot", func(ctx context.Context) error {
		frame := d.currentFrame()
		opts := []chromedp.QueryOption{chromedp.ByQuery}
		if frame != nil {
			opts = append(opts, chromedp.FromNode(frame))
		}
		return chromedp.Run(ctx, chromedp.OuterHTML("html", &html, opts...))
	})
	return html, err
}

// PlainText returns the rendered (entity-decoded, markup-free) text
// content of the element matched by selector within the current editor
// frame. Text-insertion verification runs against the text the editor
// actually displays, not its raw HTML.
func (d *Driver) PlainText(selector string) (string, error) {
	var text string
	err := d.withTimeout("plainText", func(ctx context.Context) error {
		opts := append(d.frameQueryOpts(), chromedp.AtLeast(0))
		return chromedp.Run(ctx, chromedp.Text(selector, &text, opts...))
	})
	return text, err
}

func (d *Driver) currentFrame() *cdp.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.editorFrame
}

func (d *Driver) setFrame(n *cdp.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.editorFrame = n
}

// Context returns the underlying chromedp-wired context, for components
// (signal detector, recovery manager) that need to build their own
// chromedp.Run calls scoped to the current editor frame.
func (d *Driver) Context() context.Context { return d.ctx }

// EditorFrameNode returns the currently resolved editor frame's DOM
// node, or nil if resolveEditorFrame has not succeeded yet.
func (d *Driver) EditorFrameNode() *cdp.Node { return d.currentFrame() }

// frameQueryOpts returns the chromedp.QueryOption set to scope a query to
// the resolved editor frame, if any.
func (d *Driver) frameQueryOpts(extra ...chromedp.QueryOption) []chromedp.QueryOption {
	opts := append([]chromedp.QueryOption{chromedp.ByQuery}, extra...)
	if frame := d.currentFrame(); frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}
	return opts
}

