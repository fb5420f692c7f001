// Package recovery implements the Recovery Manager: a single
// best-effort operation that clears whatever is blocking forward
// progress — a dismissible dialog, a stuck overlay, or a frame that
// needs re-resolving — and reports which step actually produced
// progress. Steps run in a fixed ladder, stopping at the first one
// that works.
package recovery

import (
	"context"

	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/metrics"
)

var dismissSelectors = []string{"[class*='dim'] button[class*='close']", "[class*='modal'] button[class*='close']", "[aria-label='close']"}
var dismissTexts = []string{"닫기", "확인", "Close", "OK"}

// Step identifies which recovery action produced progress.
type Step string

const (
	StepDismissBySelector Step = "dismiss_by_selector"
	StepDismissByText     Step = "dismiss_by_text"
	StepEscapeKey         Step = "escape_key"
	StepHideOverlayStyle  Step = "hide_overlay_style"
	StepReacquireFrame    Step = "reacquire_frame"
	StepNone              Step = "none"
)

// Outcome reports the single step that made progress, or StepNone if
// every step was attempted without observable effect.
type Outcome struct {
	Step    Step
	Applied bool
}

// Manager runs the fixed recovery ladder against a Driver. It carries no
// state of its own; the caller (draft saver, block inserter) is
// responsible for bounding the number of recovery attempts per stage
// (default 1).
type Manager struct {
	d *driver.Driver
}

func New(d *driver.Driver) *Manager { return &Manager{d: d} }

// Recover runs, in order: dismiss by selector, dismiss by visible text,
// press Escape, hide overlay via style mutation, re-resolve the editor
// frame and refocus. It stops at the first step that reports progress.
func (m *Manager) Recover(ctx context.Context) Outcome {
	out := m.recover(ctx)
	if out.Applied {
		metrics.RecoveryStepsTotal.WithLabelValues(string(out.Step)).Inc()
	}
	return out
}

func (m *Manager) recover(ctx context.Context) Outcome {
	if m.dismissBySelector(ctx) {
		return Outcome{Step: StepDismissBySelector, Applied: true}
	}
	if m.dismissByText(ctx) {
		return Outcome{Step: StepDismissByText, Applied: true}
	}
	if err := m.d.PressKey("Escape"); err == nil {
		return Outcome{Step: StepEscapeKey, Applied: true}
	}
	if m.hideOverlayStyle(ctx) {
		return Outcome{Step: StepHideOverlayStyle, Applied: true}
	}
	if err := m.reacquireAndRefocus(); err == nil {
		return Outcome{Step: StepReacquireFrame, Applied: true}
	}
	return Outcome{Step: StepNone, Applied: false}
}

func (m *Manager) dismissBySelector(ctx context.Context) bool {
	return m.d.ClickBySelectorList(dismissSelectors) == nil
}

func (m *Manager) dismissByText(ctx context.Context) bool {
	for _, text := range dismissTexts {
		if m.d.ClickByVisibleText("button", text) == nil {
			return true
		}
	}
	return false
}

// hideOverlayStyle sets display:none on any node matching a known
// overlay class. Last-resort step before frame reacquisition.
func (m *Manager) hideOverlayStyle(ctx context.Context) bool {
	const script = `(() => {
		const nodes = document.querySelectorAll("[class*='dim'], [class*='overlay'], [class*='modal']");
		let hidden = 0;
		nodes.forEach(n => { n.style.display = 'none'; hidden++; });
		return hidden;
	})()`
	var hidden int
	if err := chromedp.Run(m.d.Context(), chromedp.Evaluate(script, &hidden)); err != nil {
		return false
	}
	return hidden > 0
}

func (m *Manager) reacquireAndRefocus() error {
	if err := m.d.ReacquireEditorFrame(); err != nil {
		return err
	}
	const focusScript = `(() => {
		const editable = document.querySelector("[contenteditable='true']");
		if (!editable) return false;
		editable.focus();
		const range = document.createRange();
		range.selectNodeContents(editable);
		range.collapse(false);
		const sel = window.getSelection();
		sel.removeAllRanges();
		sel.addRange(range);
		return true;
	})()`
	var ok bool
	return chromedp.Run(m.d.Context(), chromedp.Evaluate(focusScript, &ok))
}
