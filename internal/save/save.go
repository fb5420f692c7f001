// Package save implements the Draft Saver: the state machine that
// clicks the save (or publish) control and waits for one of several
// independent success signals, retrying through a single bounded
// recovery round before declaring a timeout.
package save

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/errs"
	"github.com/devconsole/naverpost-agent/internal/recovery"
	"github.com/devconsole/naverpost-agent/internal/signal"
)

var saveButtonSelectors = []string{"button[class*='save']:not([class*='count'])", "[data-name='save']"}
var publishButtonSelectors = []string{"button[class*='publish']", "[data-name='publish']"}

const (
	pollInterval      = 300 * time.Millisecond
	defaultWaitBudget = 30 * time.Second
	maxRecoveryRounds = 1
)

// Via records which signal declared success.
type Via string

const (
	ViaToast        Via = "toast"
	ViaNetwork      Via = "network_2xx"
	ViaStatusText   Via = "status_text"
	ViaDialog       Via = "dialog"
	ViaSpinnerCycle Via = "spinner_cycle"
)

// Diagnostics is attached to a DraftSaveTimeout for operator debugging.
type Diagnostics struct {
	ObservedSpinner bool
	LastStatusText  string
	DialogSeen      bool
	RecoveryCount   int
	ResponseCount   int
}

// Result reports how the save stage concluded. DraftID carries any
// draft identifier extracted from the first matching 2xx response URL,
// for URL-based verification downstream.
type Result struct {
	Success       bool
	Via           Via
	DraftID       string
	DraftNotFound bool
	Diagnostics   Diagnostics
}

// VerifyPersistedFunc is invoked after a success signal fires; a false
// return demotes the result to DRAFT_NOT_FOUND_AFTER_SUCCESS_SIGNAL.
type VerifyPersistedFunc func(ctx context.Context) bool

// Saver drives the draft-save state machine against a Driver.
type Saver struct {
	d   *driver.Driver
	sig *signal.Detector
	rec *recovery.Manager

	WaitBudget      time.Duration
	VerifyPersisted VerifyPersistedFunc
	// Publish switches the click target from the temp-save control to
	// the publish control; the wait loop's success signals are shared.
	Publish bool
}

func New(d *driver.Driver, sig *signal.Detector, rec *recovery.Manager) *Saver {
	return &Saver{d: d, sig: sig, rec: rec, WaitBudget: defaultWaitBudget}
}

// Save runs INIT → CLICK_SAVE → WAIT_SAVE → (RECOVERY → WAIT_SAVE){0,1}
// → DONE|FAIL.
func (s *Saver) Save(ctx context.Context) (Result, error) {
	var diag Diagnostics

	for round := 0; round <= maxRecoveryRounds; round++ {
		if err := s.clickSave(ctx); err != nil {
			return Result{}, err
		}

		res, blocked, err := s.waitSave(ctx, &diag)
		if blocked != nil {
			return Result{}, blocked
		}
		if err == nil {
			res.Diagnostics = diag
			if s.VerifyPersisted != nil && !s.VerifyPersisted(ctx) {
				res.DraftNotFound = true
				res.Success = false
				return res, nil
			}
			return res, nil
		}

		if round < maxRecoveryRounds {
			diag.RecoveryCount++
			s.rec.Recover(ctx)
		}
	}

	return Result{Diagnostics: diag}, &TimeoutError{Diagnostics: diag}
}

// TimeoutError reports an exhausted save wait budget with the
// structured diagnostics an operator needs to triage it.
type TimeoutError struct {
	Diagnostics Diagnostics
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"DraftSaveTimeout: no save signal within budget (spinner=%t last_status=%q dialog=%t recoveries=%d responses=%d)",
		e.Diagnostics.ObservedSpinner, e.Diagnostics.LastStatusText,
		e.Diagnostics.DialogSeen, e.Diagnostics.RecoveryCount, e.Diagnostics.ResponseCount)
}

func (s *Saver) clickSave(ctx context.Context) error {
	s.rec.Recover(ctx)
	selectors := saveButtonSelectors
	if s.Publish {
		selectors = publishButtonSelectors
	}
	if err := s.d.ClickBySelectorList(selectors); err == nil {
		return nil
	}
	return s.d.PressCtrlKey("s")
}

// waitSave polls every 300ms until WaitBudget expires, declaring
// success on the first true among toast, network 2xx draft-save
// response, status-text transition, accepted dialog, or
// spinnerCycleDone.
func (s *Saver) waitSave(ctx context.Context, diag *Diagnostics) (Result, error, error) {
	s.d.ResetStage()
	deadline := time.Now().Add(s.WaitBudget)
	baselineStatus := ""
	if snap, err := s.sig.Detect(ctx); err == nil {
		baselineStatus = snap.StatusText
	}
	sawSpinner := false

	for time.Now().Before(deadline) {
		snap, _ := s.sig.Detect(ctx)
		if snap.SessionBlocked {
			return Result{}, &errs.SessionBlockedError{Reason: snap.BlockedReason}, nil
		}
		if snap.Spinner {
			sawSpinner = true
			diag.ObservedSpinner = true
		}
		spinnerCycleDone := sawSpinner && !snap.Spinner
		diag.LastStatusText = snap.StatusText

		if snap.Toast {
			return Result{Success: true, Via: ViaToast, DraftID: s.firstDraftID()}, nil, nil
		}
		if s.sawDraftSaveResponse(diag) {
			return Result{Success: true, Via: ViaNetwork, DraftID: s.firstDraftID()}, nil, nil
		}
		if signal.StatusSuccessSince(snap, baselineStatus) {
			return Result{Success: true, Via: ViaStatusText}, nil, nil
		}
		for _, dlg := range s.d.RecentDialogs() {
			diag.DialogSeen = true
			if containsSavePattern(dlg.Message) {
				return Result{Success: true, Via: ViaDialog}, nil, nil
			}
		}
		if spinnerCycleDone {
			return Result{Success: true, Via: ViaSpinnerCycle}, nil, nil
		}

		time.Sleep(pollInterval)
	}

	diag.ResponseCount = len(s.d.RecentResponses())
	return Result{}, nil, errTimeout
}

var errTimeout = timeoutErr("wait_save budget exhausted")

type timeoutErr string

func (e timeoutErr) Error() string { return string(e) }

func (s *Saver) sawDraftSaveResponse(diag *Diagnostics) bool {
	count := 0
	for _, resp := range s.d.RecentResponses() {
		if resp.Status == 200 || resp.Status == 201 {
			if isDraftSaveURL(resp.URL) {
				count++
			}
		}
	}
	diag.ResponseCount = count
	return count > 0
}

// isDraftSaveURL matches the URL family a draft save responds on:
// (autosave|temp|temporary|draft|save|postwrite|PostWriteForm),
// case-insensitively.
func isDraftSaveURL(url string) bool {
	lower := strings.ToLower(url)
	for _, marker := range []string{"autosave", "temporary", "temp", "draft", "save", "postwrite"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var draftIDParamRegex = regexp.MustCompile(`(?i)[?&](?:logNo|documentNo|draftId|postNo)=([0-9A-Za-z_-]+)`)

// firstDraftID extracts a draft identifier from the first 2xx
// draft-save response observed this stage, or "".
func (s *Saver) firstDraftID() string {
	for _, resp := range s.d.RecentResponses() {
		if (resp.Status == 200 || resp.Status == 201) && isDraftSaveURL(resp.URL) {
			if id := ExtractDraftID(resp.URL); id != "" {
				return id
			}
		}
	}
	return ""
}

// ExtractDraftID pulls the logNo/documentNo/draftId/postNo query
// parameter out of a draft-save response URL, or "" when absent.
func ExtractDraftID(url string) string {
	m := draftIDParamRegex.FindStringSubmatch(url)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

func containsSavePattern(msg string) bool {
	for _, marker := range []string{"저장", "save", "Save"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
