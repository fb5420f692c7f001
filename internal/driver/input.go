package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/netutil"
)

// jsString renders s as a JS string literal safe to splice into an
// Evaluate expression.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// TypeText dispatches native keyboard events for s into whichever
// element currently has focus inside the editor frame. This is the
// Keyboard strategy of the Block Inserter.
func (d *Driver) TypeText(s string) error {
	return d.withTimeout("typeText", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.SendKeys(":focus", s, d.frameQueryOpts()...))
	})
}

// PressCtrlKey dispatches key with Control held (e.g. "v" for paste,
// "s" for save) to whichever element currently has focus.
func (d *Driver) PressCtrlKey(key string) error {
	return d.withTimeout("pressKey", func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(input.ModifierCtrl)))
	})
}

// InsertTextDirect writes text through the editor's input-event route,
// bypassing keyboard simulation: focus the last editable matched by
// selector, collapse the selection to its end, run the insertText
// editing command, and fire a synthetic input event so the editor's own
// listeners observe the change. This is the DirectInsert strategy, used
// when Keyboard produces a mismatched anchor.
func (d *Driver) InsertTextDirect(selector, text string) error {
	return d.withTimeout("insertTextDirect", func(ctx context.Context) error {
		script := fmt.Sprintf(`(() => {
			const nodes = document.querySelectorAll(%s);
			const target = nodes[nodes.length - 1];
			if (!target) return false;
			target.focus();
			const range = document.createRange();
			range.selectNodeContents(target);
			range.collapse(false);
			const sel = window.getSelection();
			sel.removeAllRanges();
			sel.addRange(range);
			const ok = document.execCommand('insertText', false, %s);
			target.dispatchEvent(new InputEvent('input', {bubbles: true, inputType: 'insertText', data: %s}));
			return ok;
		})()`, jsString(selector), jsString(text), jsString(text))
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("insert-text editing command rejected the payload")
		}
		return nil
	})
}

// DispatchPaste focuses the last editable matched by selector and fires
// a synthetic ClipboardEvent('paste') whose DataTransfer carries text.
// An editor that consumes the paste calls preventDefault, which is the
// success signal here; an event that bubbles away unconsumed means the
// editor never saw it as a paste.
func (d *Driver) DispatchPaste(selector, text string) error {
	return d.withTimeout("dispatchPaste", func(ctx context.Context) error {
		script := fmt.Sprintf(`(() => {
			const nodes = document.querySelectorAll(%s);
			const target = nodes[nodes.length - 1];
			if (!target) return 'no_target';
			target.focus();
			const dt = new DataTransfer();
			dt.setData('text/plain', %s);
			const ev = new ClipboardEvent('paste', {bubbles: true, cancelable: true, clipboardData: dt});
			const defaultAllowed = target.dispatchEvent(ev);
			return defaultAllowed ? 'unconsumed' : 'consumed';
		})()`, jsString(selector), jsString(text))
		var outcome string
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &outcome)); err != nil {
			return err
		}
		if outcome != "consumed" {
			return fmt.Errorf("synthetic paste event %s by editor", outcome)
		}
		return nil
	})
}

// SetClipboard writes text to the page's clipboard so a subsequent
// paste key combo carries it. Used as the fallback when the synthetic
// paste event is not consumed.
func (d *Driver) SetClipboard(text string) error {
	return d.withTimeout("setClipboard", func(ctx context.Context) error {
		script := fmt.Sprintf(`navigator.clipboard.writeText(%s)`, jsString(text))
		return chromedp.Run(ctx, chromedp.Evaluate(script, nil,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}))
	})
}

// ClickBySelectorList tries each selector in order, clicking the first
// one that resolves to a visible node. Returns an error naming the last
// attempted selector if none resolve.
func (d *Driver) ClickBySelectorList(selectors []string) error {
	return d.withTimeout("clickBySelectorList", func(ctx context.Context) error {
		var lastErr error
		for _, sel := range selectors {
			var found []*cdp.Node
			if err := chromedp.Run(ctx, chromedp.Nodes(sel, &found, d.frameQueryOpts(chromedp.AtLeast(0))...)); err != nil {
				lastErr = fmt.Errorf("query %q: %w", sel, err)
				continue
			}
			if len(found) == 0 {
				lastErr = fmt.Errorf("selector %q matched no node", sel)
				continue
			}
			if err := chromedp.Run(ctx, chromedp.Click(sel, d.frameQueryOpts()...)); err == nil {
				return nil
			} else {
				lastErr = fmt.Errorf("click %q: %w", sel, err)
			}
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no selectors provided")
		}
		return fmt.Errorf("no selector in list resolved: %w", lastErr)
	})
}

// ClickByVisibleText finds an element whose visible text exactly matches
// text among elements matching tagSelector (e.g. "button", "a"), and
// clicks it. Used for locating toolbar controls that lack stable
// selectors.
func (d *Driver) ClickByVisibleText(tagSelector, text string) error {
	return d.withTimeout("clickByVisibleText", func(ctx context.Context) error {
		var nodes []*cdp.Node
		opts := append(d.frameQueryOpts(), chromedp.ByQueryAll)
		if err := chromedp.Run(ctx, chromedp.Nodes(tagSelector, &nodes, opts...)); err != nil {
			return err
		}
		for _, n := range nodes {
			var nodeText string
			if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &nodeText, chromedp.ByNodeID)); err != nil {
				continue
			}
			if nodeText == text {
				return chromedp.Run(ctx, chromedp.MouseClickNode(n))
			}
		}
		return fmt.Errorf("no %s element with visible text %q found", tagSelector, text)
	})
}

// SetFileOnChooser uploads absolutePath through the native file chooser
// triggered by clicking triggerSelector (or already triggered by the
// caller, when triggerSelector is empty). It first arms a
// page.SetInterceptFileChooserDialog listener; if the chooser event
// does not fire within half of the operation's timeout budget, it falls
// back to setting the file directly on a file input matched by
// directInputSelector within the remaining half, for editors whose
// upload button doesn't open a native dialog.
func (d *Driver) SetFileOnChooser(triggerSelector, directInputSelector, absolutePath string) error {
	return d.withTimeout("setFileOnChooser", func(ctx context.Context) error {
		chooserCh := make(chan *page.EventFileChooserOpened, 1)
		chromedp.ListenTarget(ctx, func(ev interface{}) {
			if e, ok := ev.(*page.EventFileChooserOpened); ok {
				select {
				case chooserCh <- e:
				default:
				}
			}
		})

		if err := chromedp.Run(ctx, page.SetInterceptFileChooserDialog(true)); err != nil {
			return err
		}
		if triggerSelector != "" {
			if err := chromedp.Run(ctx, chromedp.Click(triggerSelector, d.frameQueryOpts()...)); err != nil {
				return err
			}
		}

		chooserWait := time.NewTimer(netutil.OperationTimeout("setFileOnChooser") / 2)
		defer chooserWait.Stop()
		select {
		case e := <-chooserCh:
			return chromedp.Run(ctx, dom.SetFileInputFiles([]string{absolutePath}).WithBackendNodeID(e.BackendNodeID))
		case <-chooserWait.C:
			return chromedp.Run(ctx, chromedp.SetUploadFiles(directInputSelector, []string{absolutePath}, d.frameQueryOpts()...))
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
