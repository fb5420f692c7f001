package insert

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/plan"
)

var quoteMenuSelectors = []string{"[data-name='quotation']", "[class*='se-quotation']", "button[class*='format']"}
var quoteMenuTexts = []string{"quotation", "format", "style", "인용구", "서식"}
var quote2OptionSelectors = []string{"[data-name='quotation2']", "[class*='quotation']:nth-child(2)"}

// insertSectionTitle wraps a section-title block as a second-level
// quote block: open the format menu, choose the second-level quote
// option, type the title, apply the post-commit caret-escape sequence
// (two ArrowDown, one Enter), then audit the result.
func (ins *Inserter) insertSectionTitle(ctx context.Context, block plan.PlanBlock) Result {
	if err := ins.openQuoteMenu(); err != nil {
		ins.rec.Recover(ctx)
		return Result{Success: false, ReasonCode: ReasonQuote2MenuOpenFailed, Strategy: "quote2"}
	}

	if err := ins.d.ClickBySelectorList(quote2OptionSelectors); err != nil {
		return Result{Success: false, ReasonCode: ReasonQuote2MenuOpenFailed, Strategy: "quote2"}
	}
	if !ins.menuClosedWithin(2 * time.Second) {
		return Result{Success: false, ReasonCode: ReasonQuote2MenuOpenFailed, Strategy: "quote2"}
	}

	if err := ins.d.TypeText(block.Text); err != nil {
		return Result{Success: false, ReasonCode: ReasonInputNotReflected, Strategy: "quote2"}
	}

	ins.d.PressKey("ArrowDown")
	ins.d.PressKey("ArrowDown")
	escapeErr := ins.d.PressKey("Enter")

	audit := ins.auditQuoteBlock(block.Text)
	if audit == ReasonQuote1Detected || audit == ReasonQuote2TitleVerifyFailed {
		return Result{Success: false, ReasonCode: audit, Strategy: "quote2"}
	}

	if escapeErr != nil {
		if ins.StrictQuoteEscape {
			return Result{Success: false, ReasonCode: ReasonQuote2ExitFailed, Strategy: "quote2"}
		}
		return Result{Success: true, Strategy: "quote2", DebugNote: "QUOTE2_EXIT_RECOVERED"}
	}
	if !ins.caretLeftQuoteBlock() {
		if ins.StrictQuoteEscape {
			return Result{Success: false, ReasonCode: ReasonQuote2ExitFailed, Strategy: "quote2"}
		}
		return Result{Success: true, Strategy: "quote2", DebugNote: "QUOTE2_EXIT_VERIFY_BYPASS"}
	}

	return Result{Success: true, Strategy: "quote2"}
}

func (ins *Inserter) openQuoteMenu() error {
	if err := ins.d.ClickBySelectorList(quoteMenuSelectors); err == nil {
		return nil
	}
	for _, text := range quoteMenuTexts {
		if err := ins.d.ClickByVisibleText("button", text); err == nil {
			return nil
		}
	}
	return errNoQuoteMenu
}

var errNoQuoteMenu = quoteMenuError("no quote menu control resolved")

type quoteMenuError string

func (e quoteMenuError) Error() string { return string(e) }

func (ins *Inserter) menuClosedWithin(budget time.Duration) bool {
	deadline := budget
	const poll = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < deadline; elapsed += poll {
		var open bool
		_ = chromedp.Run(ins.d.Context(), chromedp.Evaluate(
			`!!document.querySelector("[class*='quotation-menu'][style*='display: block']")`, &open))
		if !open {
			return true
		}
		time.Sleep(poll)
	}
	return false
}

// auditQuoteBlock checks that no first-level quote variant exists, that
// no quote block is empty, and that the editor frame's HTML contains the
// whitespace-normalized title (titles shorter than 10 characters skip
// this check). The title search covers the whole frame HTML; it is not
// limited to the latest quote block.
func (ins *Inserter) auditQuoteBlock(title string) ReasonCode {
	html, err := ins.d.HTMLSnapshot()
	if err != nil {
		return ReasonVerifyFrameChanged
	}
	if strings.Contains(html, "se-quotation1") {
		return ReasonQuote1Detected
	}
	if ins.hasEmptyQuoteBlock() {
		return ReasonQuote2TitleVerifyFailed
	}
	normalizedTitle := strings.Join(strings.Fields(title), " ")
	if len(normalizedTitle) >= 10 && !strings.Contains(normalizeWhitespace(html), normalizedTitle) {
		return ReasonQuote2TitleVerifyFailed
	}
	return ""
}

// hasEmptyQuoteBlock reports whether any quote-style block (first- or
// second-level) in the editor body has no text content — the editor
// can leave a stray empty quote block behind when the format menu is
// dismissed without a title actually committing to it.
func (ins *Inserter) hasEmptyQuoteBlock() bool {
	var empty bool
	_ = chromedp.Run(ins.d.Context(), chromedp.Evaluate(
		`Array.from(document.querySelectorAll("[class*='se-quotation']")).some(el => el.textContent.trim().length === 0)`,
		&empty))
	return empty
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (ins *Inserter) caretLeftQuoteBlock() bool {
	var inQuote bool
	_ = chromedp.Run(ins.d.Context(), chromedp.Evaluate(
		`(() => { const sel = window.getSelection(); if (!sel.anchorNode) return false; let n = sel.anchorNode; while (n) { if (n.classList && n.classList.contains('se-quotation2')) return true; n = n.parentNode; } return false; })()`,
		&inQuote))
	return !inQuote
}
