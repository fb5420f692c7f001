// Package signal implements the Signal Detector: a single read-only
// operation that samples the current page state for the composite
// success/failure cues every higher-level state machine (draft saver,
// image uploader, block inserter) polls against.
package signal

import (
	"context"
	"regexp"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/errs"
	"github.com/devconsole/naverpost-agent/internal/util"
)

var toastSelectors = []string{"[class*='toast']", "[class*='notification']", "[role='alert']"}
var spinnerSelectors = []string{"[class*='spinner']", "[class*='loading']", "[class*='progress']"}
var overlaySelectors = []string{"[class*='dim']", "[class*='overlay']", "[class*='modal']:not([style*='display: none'])"}
var loginFormSelectors = []string{"form[class*='login']", "input[type='password']"}

var successPhrases = []string{"temp save complete", "auto-saved", "saved", "임시저장"}
var failurePhrases = []string{"failed", "error", "실패"}

var statusSuccessRegex = regexp.MustCompile(`(?i)(saved|complete|success|저장)`)

// blockOrigins maps a page origin to the closed-set BlockedReason a
// redirect there indicates. Matching on the full origin rather than a
// host substring keeps an editor-hosted path that merely mentions one
// of these hosts from tripping the detector.
var blockOrigins = []struct {
	origin string
	reason errs.BlockedReason
}{
	{"https://captcha.naver.com", errs.CaptchaDetected},
	{"https://nidlogin.naver.com", errs.SessionExpired},
}

// blockPathPatterns maps a substring of the current URL's path to a
// BlockedReason, independent of host (nid.naver.com/login/captcha is a
// path-based match, not a dedicated captcha host).
var blockPathPatterns = []struct {
	pattern string
	reason  errs.BlockedReason
}{
	{"captcha", errs.CaptchaDetected},
}

// blockCues maps a body-text substring to the BlockedReason it indicates.
var blockCues = []struct {
	cue    string
	reason errs.BlockedReason
}{
	{"보안문자", errs.CaptchaDetected},
	{"비정상적인 접근", errs.SecurityCheckRequired},
	{"2단계 인증", errs.TwoFactorRequired},
	{"본인확인", errs.TwoFactorRequired},
	{"이용약관에 동의", errs.TermsAgreementRequired},
	{"세션이 만료", errs.SessionExpired},
}

// Detector samples the page through a Driver. It is stateless aside from
// the Driver it wraps; callers (Draft Saver, Image Uploader) own any
// baseline comparisons across snapshots.
type Detector struct {
	d *driver.Driver
}

func New(d *driver.Driver) *Detector { return &Detector{d: d} }

// SignalSnapshot is one point-in-time read of every composable signal,
// plus the terminal SessionBlocked flag.
type SignalSnapshot struct {
	Toast          bool
	ToastText      string
	Spinner        bool
	StatusText     string
	StatusSuccess  bool
	Overlay        bool
	SessionBlocked bool
	// BlockedReason is one of the closed-set values errs.BlockedReason
	// defines, empty when SessionBlocked is false.
	BlockedReason errs.BlockedReason
	// BlockedDetail is a free-form, operator-facing elaboration of
	// BlockedReason (e.g. which host or cue matched) for debug logging.
	BlockedDetail string
}

// Detect samples every contract in one pass. SessionBlocked, when true,
// is terminal for the caller; every other field is composable. DOM
// queries run against the driver's own browser context; ctx only gates
// whether the sample starts at all.
func (s *Detector) Detect(ctx context.Context) (SignalSnapshot, error) {
	var snap SignalSnapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	cctx := s.d.Context()

	toastText, err := s.firstVisibleText(cctx, toastSelectors)
	if err == nil && toastText != "" {
		norm := strings.ToLower(toastText)
		if containsAny(norm, successPhrases) && !containsAny(norm, failurePhrases) {
			snap.Toast = true
			snap.ToastText = toastText
		}
	}

	spinnerCount, _ := s.countVisible(cctx, spinnerSelectors)
	snap.Spinner = spinnerCount > 0

	statusText, _ := s.statusText(cctx)
	snap.StatusText = statusText
	snap.StatusSuccess = statusSuccessRegex.MatchString(statusText)

	overlayCount, _ := s.countVisible(cctx, overlaySelectors)
	snap.Overlay = overlayCount > 0

	blocked, reason, detail := s.sessionBlocked(cctx)
	snap.SessionBlocked = blocked
	snap.BlockedReason = reason
	snap.BlockedDetail = detail

	return snap, nil
}

// StatusSuccessSince reports whether the current status text matches the
// success regex AND differs from a baseline captured at the start of a
// wait window.
func StatusSuccessSince(current SignalSnapshot, baseline string) bool {
	return current.StatusSuccess && current.StatusText != baseline
}

func (s *Detector) firstVisibleText(ctx context.Context, selectors []string) (string, error) {
	for _, sel := range selectors {
		var text string
		err := chromedp.Run(ctx, chromedp.Text(sel, &text, chromedp.ByQuery, chromedp.AtLeast(0)))
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", nil
}

func (s *Detector) countVisible(ctx context.Context, selectors []string) (int, error) {
	total := 0
	for _, sel := range selectors {
		var ids []cdp.NodeID
		if err := chromedp.Run(ctx, chromedp.NodeIDs(sel, &ids, chromedp.ByQueryAll, chromedp.AtLeast(0))); err == nil {
			total += len(ids)
		}
	}
	return total, nil
}

func (s *Detector) statusText(ctx context.Context) (string, error) {
	var text string
	_ = chromedp.Run(ctx, chromedp.Text("[class*='status']", &text, chromedp.ByQuery, chromedp.AtLeast(0)))
	return text, nil
}

// sessionBlocked checks the URL's host and path against known
// auth/challenge patterns, then the login form, then body cues, in that
// order, returning the first match mapped to its closed-set
// errs.BlockedReason and a free-form detail string for debug logging.
func (s *Detector) sessionBlocked(ctx context.Context) (bool, errs.BlockedReason, string) {
	if url, err := s.d.CurrentURL(); err == nil {
		if reason, detail, ok := classifyBlockedURL(url); ok {
			return true, reason, detail
		}
	}

	loginCount, _ := s.countVisible(ctx, loginFormSelectors)
	if loginCount > 0 {
		return true, errs.LoginFormStillVisible, "login form visible"
	}

	var body string
	_ = chromedp.Run(ctx, chromedp.Text("body", &body, chromedp.ByQuery, chromedp.AtLeast(0)))
	if reason, detail, ok := classifyBlockedBody(body); ok {
		return true, reason, detail
	}
	return false, "", ""
}

// classifyBlockedURL matches url's origin and path against the known
// auth/captcha patterns, pure logic split out from sessionBlocked so it
// can be exercised without a live browser context.
func classifyBlockedURL(rawURL string) (errs.BlockedReason, string, bool) {
	origin := util.ExtractOrigin(rawURL)
	for _, p := range blockOrigins {
		if origin == p.origin {
			return p.reason, "origin matches known auth/captcha origin: " + origin, true
		}
	}
	path := util.ExtractURLPath(rawURL)
	for _, p := range blockPathPatterns {
		if strings.Contains(path, p.pattern) {
			return p.reason, "path matches known auth/captcha pattern: " + path, true
		}
	}
	return "", "", false
}

// classifyBlockedBody matches body text against the known block cues.
func classifyBlockedBody(body string) (errs.BlockedReason, string, bool) {
	for _, c := range blockCues {
		if strings.Contains(body, c.cue) {
			return c.reason, "body contains block cue: " + c.cue, true
		}
	}
	return "", "", false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
