// Package upload implements the Image Uploader: the per-image attempt
// lifecycle that clicks the editor's image-insert control, triggers the
// OS file chooser, and waits for a composite signal before declaring an
// image placed. Multi-image batching is forbidden at this layer —
// callers process an N-image plan as N sequential single-image attempts
// so the observed-count delta stays attributable to one image — so
// every exported entry point here takes exactly one image.
package upload

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/metrics"
	"github.com/devconsole/naverpost-agent/internal/signal"
)

var toolbarButtonSelectors = []string{"[data-name='image']", "button[class*='image']"}
var toolbarButtonTexts = []string{"사진", "Image", "Photo"}
var fromPCButtonTexts = []string{"내 사진", "From PC", "Upload"}
var fileInputSelector = "input[type='file']"

const (
	defaultMaxAttempts = 3
	defaultWaitBudget  = 20 * time.Second
	pollInterval       = 300 * time.Millisecond
)

// Classification is the closed set of outcomes an upload attempt can
// report.
type Classification string

const (
	ClassSuccess    Classification = "SUCCESS"
	ClassUIFailed   Classification = "IMAGE_UPLOAD_UI_FAILED"
	ClassStuck      Classification = "IMAGE_UPLOAD_STUCK"
	ClassNoInsert   Classification = "IMAGE_UPLOAD_NO_INSERT"
	ClassDuplicated Classification = "IMAGE_UPLOAD_DUPLICATED"
)

// AttemptRecord is one attempt's outcome, kept for report assembly.
type AttemptRecord struct {
	ImageIndex     int    `json:"image_index"`
	Attempt        int    `json:"attempt"`
	Classification string `json:"classification"`
	ElapsedMs      int64  `json:"elapsed_ms"`
}

// Uploader drives the per-image attempt lifecycle against a Driver.
type Uploader struct {
	d   *driver.Driver
	sig *signal.Detector

	// MaxAttempts bounds the retry ladder per image.
	MaxAttempts int
	// WaitBudget bounds each attempt's composite-signal wait.
	WaitBudget time.Duration
	// SimulateFailure, when non-empty, forces every attempt to fail
	// with the named classification without touching the browser.
	// Test-only escape hatch.
	SimulateFailure string

	// baseline is the editor image count observed at run start,
	// accommodating pre-existing ghost state left by an earlier
	// abandoned draft in the same editor document.
	baseline int

	records []AttemptRecord
}

func New(d *driver.Driver, sig *signal.Detector) *Uploader {
	return &Uploader{d: d, sig: sig, MaxAttempts: defaultMaxAttempts, WaitBudget: defaultWaitBudget}
}

// SetBaseline records editorImageCountBefore observed once at the start
// of the whole run.
func (u *Uploader) SetBaseline(count int) { u.baseline = count }

// Baseline returns the run-start editor image count, used by the
// post-save reconciliation pass.
func (u *Uploader) Baseline() int { return u.baseline }

// AttemptLog returns every attempt recorded so far, in order, for the
// report's per-image upload step.
func (u *Uploader) AttemptLog() []AttemptRecord {
	out := make([]AttemptRecord, len(u.records))
	copy(out, u.records)
	return out
}

// UploadOneResult reports how the retry ladder for one image concluded.
type UploadOneResult struct {
	Success        bool
	Classification string
	Attempts       int
}

// UploadOne runs the full retry ladder for a single image at imageIndex,
// returning once it succeeds or exhausts its attempts. Only the
// transient STUCK classification retries; UI_FAILED and DUPLICATED are
// terminal for this image.
func (u *Uploader) UploadOne(ctx context.Context, absolutePath string, imageIndex int) (UploadOneResult, error) {
	var last Classification
	for attempt := 1; attempt <= u.maxAttempts(); attempt++ {
		started := time.Now()
		class, err := u.attempt(ctx, absolutePath)
		u.record(imageIndex, attempt, class, started)
		if err != nil {
			return UploadOneResult{Classification: string(class), Attempts: attempt}, err
		}
		if class == ClassSuccess {
			return UploadOneResult{Success: true, Classification: string(ClassSuccess), Attempts: attempt}, nil
		}
		last = class
		if class != ClassStuck {
			return UploadOneResult{Success: false, Classification: string(last), Attempts: attempt}, nil
		}
		time.Sleep(backoff(attempt))
	}
	return UploadOneResult{Success: false, Classification: string(last), Attempts: u.maxAttempts()}, nil
}

func (u *Uploader) maxAttempts() int {
	if u.MaxAttempts > 0 {
		return u.MaxAttempts
	}
	return defaultMaxAttempts
}

func (u *Uploader) waitBudget() time.Duration {
	if u.WaitBudget > 0 {
		return u.WaitBudget
	}
	return defaultWaitBudget
}

func (u *Uploader) record(imageIndex, attempt int, class Classification, started time.Time) {
	u.records = append(u.records, AttemptRecord{
		ImageIndex:     imageIndex,
		Attempt:        attempt,
		Classification: string(class),
		ElapsedMs:      time.Since(started).Milliseconds(),
	})
	metrics.ImageUploadAttemptsTotal.WithLabelValues(string(class)).Inc()
}

// backoff implements 700ms × 2^min(attempt-1,4) + jitter(0..250ms).
func backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 4 {
		shift = 4
	}
	base := 700 * time.Millisecond * time.Duration(1<<uint(shift))
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	return base + jitter
}

func (u *Uploader) attempt(ctx context.Context, absolutePath string) (Classification, error) {
	if u.SimulateFailure != "" {
		return Classification(u.SimulateFailure), nil
	}

	before := u.EditorImageCount(ctx)
	u.d.ResetStage()

	if err := u.clickToolbarButton(); err != nil {
		return ClassUIFailed, nil
	}

	// Prefer the "from PC" button so the native chooser event fires;
	// fall back to setting files directly on the first file input.
	for _, text := range fromPCButtonTexts {
		if u.d.ClickByVisibleText("button", text) == nil {
			break
		}
	}
	if err := u.d.SetFileOnChooser("", fileInputSelector, absolutePath); err != nil {
		return ClassUIFailed, nil
	}

	class := u.waitComposite(ctx, before)
	if class == ClassSuccess {
		u.dismissFollowUpDialog(ctx)
	}
	return class, nil
}

func (u *Uploader) clickToolbarButton() error {
	if err := u.d.ClickBySelectorList(toolbarButtonSelectors); err == nil {
		return nil
	}
	for _, text := range toolbarButtonTexts {
		if err := u.d.ClickByVisibleText("button", text); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no image toolbar control resolved")
}

// dismissFollowUpDialog closes any confirmation layer the editor opens
// after a successful insert (e.g. an image-detail popover).
func (u *Uploader) dismissFollowUpDialog(ctx context.Context) {
	snap, err := u.sig.Detect(ctx)
	if err == nil && snap.Overlay {
		_ = u.d.PressKey("Escape")
	}
}

// waitComposite polls for (networkResponse2xx upload-shaped) AND (toast
// OR spinnerCycleDone) AND (editorImageCount increased by ≥1), within
// the wait budget. The delta is measured against this attempt's own
// pre-click count so earlier images' counts never contaminate the
// classification.
func (u *Uploader) waitComposite(ctx context.Context, before int) Classification {
	deadline := time.Now().Add(u.waitBudget())
	sawSpinner := false
	sawNetwork2xx := false

	for time.Now().Before(deadline) {
		snap, _ := u.sig.Detect(ctx)
		if snap.Spinner {
			sawSpinner = true
		}
		spinnerCycleDone := sawSpinner && !snap.Spinner

		for _, resp := range u.d.RecentResponses() {
			if resp.Status >= 200 && resp.Status < 300 && looksLikeUploadURL(resp.URL) {
				sawNetwork2xx = true
			}
		}

		delta := u.EditorImageCount(ctx) - before

		if sawNetwork2xx && (snap.Toast || spinnerCycleDone) && delta >= 1 {
			if delta > 1 {
				return ClassDuplicated
			}
			return ClassSuccess
		}
		// A 2xx with no DOM count change yet is not NO_INSERT until the
		// deadline passes; the editor may still be rendering the block.
		time.Sleep(pollInterval)
	}

	delta := u.EditorImageCount(ctx) - before
	if delta > 1 {
		return ClassDuplicated
	}
	if sawNetwork2xx && delta == 0 {
		return ClassNoInsert
	}
	return ClassStuck
}

func looksLikeUploadURL(url string) bool {
	lower := strings.ToLower(url)
	for _, marker := range []string{"upload", "image", "attach"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SampleRefs returns up to max editor-CDN image URLs currently present
// in the document, for the report's image summary.
func (u *Uploader) SampleRefs(ctx context.Context, max int) []string {
	var nodes []*cdp.Node
	_ = chromedp.Run(u.d.Context(), chromedp.Nodes("img[src*='pstatic.net']", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	var out []string
	for _, n := range nodes {
		if src := n.AttributeValue("src"); src != "" {
			out = append(out, src)
		}
		if len(out) >= max {
			break
		}
	}
	return out
}

// EditorImageCount counts img references whose URL host matches the
// editor CDN pattern, plus standalone image component nodes, taking the
// max of the two counts. Queries run against the driver's own browser
// context, not the caller's.
func (u *Uploader) EditorImageCount(ctx context.Context) int {
	cctx := u.d.Context()

	var ids []cdp.NodeID
	_ = chromedp.Run(cctx, chromedp.NodeIDs("img[src*='pstatic.net']", &ids, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	cdnCount := len(ids)

	var componentIDs []cdp.NodeID
	_ = chromedp.Run(cctx, chromedp.NodeIDs("[class*='se-image']", &componentIDs, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	componentCount := len(componentIDs)

	if cdnCount > componentCount {
		return cdnCount
	}
	return componentCount
}
