// Package verify implements the Draft Verifier: an independent check,
// run after a save signal, that opens the drafts panel and confirms the
// expected title (or a known draftId) actually appears in the list.
package verify

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/driver"
)

var draftsCountButtonSelectors = []string{"[data-name='drafts-count']", "button[class*='draft-count']"}
var draftsPanelSelector = "[class*='drafts-panel']"
var draftTitleSelector = "[class*='drafts-panel'] [class*='title']"
var draftAnchorSelector = "[class*='drafts-panel'] a[href]"

const (
	panelRenderWait = 500 * time.Millisecond
	maxAttempts     = 3
	attemptBackoff  = 600 * time.Millisecond
	minPivotLen     = 6
)

// Candidate is one row parsed out of the drafts panel.
type Candidate struct {
	Title string
	URL   string
}

// Result reports whether the expected draft was located, and how.
type Result struct {
	Found    bool
	MatchURL string
	Attempts int
}

// Verifier drives the independent drafts-panel check against a Driver.
type Verifier struct {
	d *driver.Driver

	// Budget bounds the whole attempt loop; zero means the default.
	Budget time.Duration
}

const defaultBudget = 45 * time.Second

func New(d *driver.Driver) *Verifier { return &Verifier{d: d, Budget: defaultBudget} }

// Verify opens the drafts panel and looks for expectedTitle (and, if
// draftID is non-empty, prefers a URL-based match over text) up to
// three attempts with 600ms backoff.
func (v *Verifier) Verify(ctx context.Context, expectedTitle, draftID string) (Result, error) {
	budget := v.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	deadline := time.Now().Add(budget)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts && time.Now().Before(deadline); attempt++ {
		candidates, err := v.openAndParse(ctx)
		if err != nil {
			lastErr = err
			time.Sleep(attemptBackoff)
			continue
		}

		if draftID != "" {
			for _, c := range candidates {
				if strings.Contains(c.URL, draftID) {
					return Result{Found: true, MatchURL: c.URL, Attempts: attempt}, nil
				}
			}
		}

		if match, ok := matchTitle(candidates, expectedTitle); ok {
			return Result{Found: true, MatchURL: match.URL, Attempts: attempt}, nil
		}

		time.Sleep(attemptBackoff)
	}
	return Result{Attempts: maxAttempts}, lastErr
}

func (v *Verifier) openAndParse(ctx context.Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cctx := v.d.Context()

	if err := v.d.ClickBySelectorList(draftsCountButtonSelectors); err != nil {
		return nil, err
	}
	time.Sleep(panelRenderWait)

	var titleIDs []cdp.NodeID
	if err := chromedp.Run(cctx, chromedp.NodeIDs(draftTitleSelector, &titleIDs, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(titleIDs))
	for _, id := range titleIDs {
		var text string
		if err := chromedp.Run(cctx, chromedp.Text([]cdp.NodeID{id}, &text, chromedp.ByNodeID)); err == nil {
			titles = append(titles, strings.TrimSpace(text))
		}
	}

	var anchorIDs []cdp.NodeID
	if err := chromedp.Run(cctx, chromedp.NodeIDs(draftAnchorSelector, &anchorIDs, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(anchorIDs))
	for _, id := range anchorIDs {
		var href string
		var ok bool
		_ = chromedp.Run(cctx, chromedp.AttributeValue(id, "href", &href, &ok, chromedp.ByNodeID))
		urls = append(urls, href)
	}

	n := len(titles)
	if len(urls) < n {
		n = len(urls)
	}
	candidates := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		candidates = append(candidates, Candidate{Title: titles[i], URL: urls[i]})
	}
	return candidates, nil
}

// matchTitle applies exact normalized-title equality, falling back to a
// substring match requiring a ≥6-character pivot from expected: either
// the candidate title contains the expected title, or a candidate title
// of at least 6 characters is contained in it.
func matchTitle(candidates []Candidate, expected string) (Candidate, bool) {
	normExpected := normalizeTitle(expected)
	for _, c := range candidates {
		if normalizeTitle(c.Title) == normExpected {
			return c, true
		}
	}
	if len(normExpected) >= minPivotLen {
		for _, c := range candidates {
			title := normalizeTitle(c.Title)
			if strings.Contains(title, normExpected) || (len(title) >= minPivotLen && strings.Contains(normExpected, title)) {
				return c, true
			}
		}
	}
	return Candidate{}, false
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
