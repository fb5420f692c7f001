// Package insert implements the Block Inserter, the largest component
// of the core: it places one plan block into the editor body using
// whichever input strategy actually sticks, verifies the result against
// text anchors, and hands image blocks off to the Image Uploader.
// Menu controls are looked up by named selectors first, then by a
// visible-text match.
package insert

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/errs"
	"github.com/devconsole/naverpost-agent/internal/plan"
	"github.com/devconsole/naverpost-agent/internal/recovery"
	"github.com/devconsole/naverpost-agent/internal/report"
	"github.com/devconsole/naverpost-agent/internal/signal"
	"github.com/devconsole/naverpost-agent/internal/upload"
)

// ReasonCode is the closed set of failure classifications a block
// insertion attempt can report.
type ReasonCode string

const (
	ReasonEditorAreaNotFound         ReasonCode = "EDITOR_AREA_NOT_FOUND"
	ReasonFocusFailed                ReasonCode = "FOCUS_FAILED"
	ReasonInputNotReflected          ReasonCode = "INPUT_NOT_REFLECTED"
	ReasonVerifyTextNotFound         ReasonCode = "VERIFICATION_FAILED_TEXT_NOT_FOUND"
	ReasonVerifyTextMismatch         ReasonCode = "VERIFICATION_FAILED_TEXT_MISMATCH"
	ReasonVerifyFocusLost            ReasonCode = "VERIFICATION_FAILED_FOCUS_LOST"
	ReasonVerifyFrameChanged         ReasonCode = "VERIFICATION_FAILED_FRAME_CHANGED"
	ReasonOverlayBlocking            ReasonCode = "OVERLAY_BLOCKING"
	ReasonStaleElement               ReasonCode = "STALE_ELEMENT"
	ReasonContentEncodingError       ReasonCode = "CONTENT_ENCODING_ERROR"
	ReasonQuote2MenuOpenFailed       ReasonCode = "QUOTE2_MENU_OPEN_FAILED"
	ReasonQuote2TitleVerifyFailed    ReasonCode = "QUOTE2_TITLE_VERIFY_FAILED"
	ReasonQuote2ExitFailed           ReasonCode = "QUOTE2_EXIT_FAILED"
	ReasonQuote1Detected             ReasonCode = "QUOTE1_DETECTED"
	ReasonSessionBlocked             ReasonCode = "SESSION_BLOCKED"
)

// Result reports the outcome of one insertBlock call.
type Result struct {
	Success    bool
	ReasonCode ReasonCode
	Strategy   string
	DebugNote  string
	// BlockedReason is set only when ReasonCode is SESSION_BLOCKED.
	BlockedReason errs.BlockedReason
}

// Inserter places PlanBlocks into the editor, coordinating the Driver
// Facade, Signal Detector, Recovery Manager, and Image Uploader.
type Inserter struct {
	d        *driver.Driver
	sig      *signal.Detector
	rec      *recovery.Manager
	uploader *upload.Uploader

	// StrictQuoteEscape controls whether a caret-escape verification
	// failure on a section-title block is terminal (true) or
	// recoverable with a logged bypass (false).
	StrictQuoteEscape bool

	// LastFixture holds the debug fixture for the most recent text
	// insertion that exhausted every strategy: block identity, expected
	// anchors, and a sample of what the editor actually contained. The
	// orchestrator attaches it to the failure's debug capture.
	LastFixture *report.Fixture
}

func New(d *driver.Driver, sig *signal.Detector, rec *recovery.Manager, up *upload.Uploader) *Inserter {
	return &Inserter{d: d, sig: sig, rec: rec, uploader: up, StrictQuoteEscape: true}
}

const editableSelector = "[contenteditable='true']"

// InsertBlock places a single plan block and verifies the result,
// running the per-block environment check (session-blocked abort,
// overlay recovery, one recovery attempt allowed) before returning.
func (ins *Inserter) InsertBlock(ctx context.Context, p *plan.PostPlan, block plan.PlanBlock) Result {
	var res Result
	switch block.Type {
	case plan.BlockImage:
		res = ins.insertImage(ctx, block)
	case plan.BlockSectionTitle:
		res = ins.insertSectionTitle(ctx, block)
	default:
		res = ins.insertText(ctx, block)
	}

	snap, err := ins.sig.Detect(ctx)
	if err == nil && snap.SessionBlocked {
		return Result{
			Success:       false,
			ReasonCode:    ReasonSessionBlocked,
			BlockedReason: snap.BlockedReason,
			DebugNote:     snap.BlockedDetail,
		}
	}
	if err == nil && snap.Overlay {
		ins.rec.Recover(ctx)
	}
	return res
}

// insertText tries the Keyboard, DirectInsert, and Paste strategies in
// order, invoking the recovery ladder between failed attempts. When
// every strategy is exhausted it leaves a debug fixture behind for the
// failure capture.
func (ins *Inserter) insertText(ctx context.Context, block plan.PlanBlock) Result {
	text := block.Text
	strategies := []struct {
		name string
		fn   func(string) error
	}{
		{"keyboard", ins.typeKeyboard},
		{"direct_insert", ins.insertDirect},
		{"paste", ins.insertPaste},
	}

	var last Result
	for _, strat := range strategies {
		before, _ := ins.d.PlainText(editableSelector)
		if err := strat.fn(text); err != nil {
			last = Result{Success: false, ReasonCode: ReasonInputNotReflected, Strategy: strat.name}
			ins.rec.Recover(ctx)
			continue
		}
		if code, ok := ins.verifyAnchors(ctx, text, before); !ok {
			last = Result{Success: false, ReasonCode: code, Strategy: strat.name}
			ins.rec.Recover(ctx)
			continue
		}
		ins.LastFixture = nil
		return Result{Success: true, Strategy: strat.name}
	}

	observed, _ := ins.d.PlainText(editableSelector)
	ins.LastFixture = &report.Fixture{
		BlockID:         block.BlockID,
		ExpectedText:    text,
		ExpectedAnchors: anchors(text),
		ObservedSample:  tail(observed, 400),
	}
	return last
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// typeKeyboard splits text into ≤360-char chunks on sentence/newline
// boundaries and types each chunk followed by one Enter; the Enter
// after the last chunk commits the paragraph.
func (ins *Inserter) typeKeyboard(text string) error {
	for _, chunk := range chunkText(text, 360) {
		if err := ins.d.TypeText(chunk); err != nil {
			return err
		}
		if err := ins.d.PressKey("Enter"); err != nil {
			return err
		}
	}
	return nil
}

// insertDirect uses the editor's direct input-event route, bypassing
// keyboard simulation.
func (ins *Inserter) insertDirect(text string) error {
	return ins.d.InsertTextDirect(editableSelector, text)
}

// insertPaste dispatches a clipboard-style paste event carrying the
// text in its DataTransfer; when the editor doesn't consume the
// synthetic event, fall back to writing the real clipboard and sending
// the paste key combo.
func (ins *Inserter) insertPaste(text string) error {
	if err := ins.d.DispatchPaste(editableSelector, text); err == nil {
		return nil
	}
	if err := ins.d.SetClipboard(text); err != nil {
		return err
	}
	return ins.d.PressCtrlKey("v")
}

func chunkText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := lastBoundary(remaining, maxLen)
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastBoundary(s string, maxLen int) int {
	window := s[:maxLen]
	if idx := strings.LastIndexAny(window, ".!?\n"); idx > maxLen/2 {
		return idx + 1
	}
	return maxLen
}

var anchorStripRegex = regexp.MustCompile("[`'\"~*_>\\p{Cc}]")

// anchors extracts up to three 40-char anchors (start, middle, end)
// from the normalized text, stripping quote/emphasis markers and
// control characters first.
func anchors(text string) []string {
	clean := anchorStripRegex.ReplaceAllString(text, "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil
	}
	const width = 40
	if len(clean) <= width {
		return []string{clean}
	}
	mid := len(clean)/2 - width/2
	if mid < 0 {
		mid = 0
	}
	end := len(clean) - width
	if end < 0 {
		end = 0
	}
	set := []string{clean[:width]}
	if mid > 0 && mid+width <= len(clean) {
		set = append(set, clean[mid:mid+width])
	}
	if end > width {
		set = append(set, clean[end:])
	}
	return set
}

// verifyAnchors reads back the editor's plain text (not raw HTML, so
// entity-escaped characters and markup don't distort either the anchor
// match or the character count) and requires at least two anchors
// present (one if shorter than 24 chars), plus a minimum body-growth
// threshold of max(8, 35% of the inserted text's non-whitespace length)
// measured against the plain text captured before the strategy ran.
func (ins *Inserter) verifyAnchors(ctx context.Context, text, before string) (ReasonCode, bool) {
	after, err := ins.d.PlainText(editableSelector)
	if err != nil {
		return ReasonVerifyFrameChanged, false
	}

	if needAnchors := anchors(text); len(needAnchors) > 0 {
		required := 2
		if len(text) < 24 {
			required = 1
		}
		found := 0
		for _, a := range needAnchors {
			if strings.Contains(after, a) {
				found++
			}
		}
		if found < required {
			return ReasonVerifyTextNotFound, false
		}
	}

	if nonWhitespaceLen(after)-nonWhitespaceLen(before) < requiredGrowth(text) {
		return ReasonVerifyTextMismatch, false
	}
	return "", true
}

// requiredGrowth is the minimum body-growth threshold:
// max(8, 35% of the chunk's non-whitespace length).
func requiredGrowth(text string) int {
	const minGrowth = 8
	if pct := (nonWhitespaceLen(text) * 35) / 100; pct > minGrowth {
		return pct
	}
	return minGrowth
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// insertImage delegates to the Image Uploader and places the caret at
// end of body to separate subsequent content.
func (ins *Inserter) insertImage(ctx context.Context, block plan.PlanBlock) Result {
	outcome, err := ins.uploader.UploadOne(ctx, block.ImagePath, block.ImageIndex)
	if err != nil {
		return Result{Success: false, ReasonCode: ReasonStaleElement, Strategy: "image_upload", DebugNote: err.Error()}
	}
	if !outcome.Success {
		return Result{Success: false, ReasonCode: ReasonCode(outcome.Classification), Strategy: "image_upload"}
	}
	ins.d.PressKey("End")
	ins.d.PressKey("Enter")
	return Result{Success: true, Strategy: "image_upload"}
}
