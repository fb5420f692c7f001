package driver

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

// editorURLPatterns are the known substrings that mark a child frame as
// hosting the editor document.
var editorURLPatterns = []string{"PostWriteForm", "SmartEditor", "Redirect=Write"}

const editorFrameName = "mainFrame"

// toolbarSelectors and editableSelectors are the selector families used
// to score a candidate frame.
var toolbarSelectors = []string{"[class*='toolbar']", "[class*='se-toolbar']", "[role='toolbar']"}
var editableSelectors = []string{"[contenteditable='true']"}
var saveControlSelectors = []string{"[class*='save']", "button[class*='publish']"}

type frameCandidate struct {
	node        *cdp.Node
	url         string
	score       int
	hasEditable bool
}

// ResolveEditorFrame scores all frames of the page and adopts the
// highest-scoring one as the current editor frame. Ties resolve to the
// first frame whose URL matches a known pattern. Fails with
// EDITOR_IFRAME_NOT_FOUND if no frame scores above the minimum
// (editable presence).
func (d *Driver) ResolveEditorFrame() error {
	return d.withTimeout("resolveEditorFrame", func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Run(ctx, chromedp.Nodes("iframe", &nodes, chromedp.ByQueryAll)); err != nil {
			return err
		}

		var candidates []frameCandidate
		for _, n := range nodes {
			candidates = append(candidates, d.scoreFrame(ctx, n))
		}

		best, ok := pickBest(candidates)
		if !ok {
			return &errs.EditorFrameNotFoundError{Reason: "no frame scored above the editable-presence minimum"}
		}
		d.setFrame(best.node)
		return nil
	})
}

// ReacquireEditorFrame re-resolves the editor frame after a recovery
// action (e.g. overlay dismissal causing a DOM remount). It invalidates
// the cached frame handle; the caller's plan and progress state are
// untouched.
func (d *Driver) ReacquireEditorFrame() error {
	d.setFrame(nil)
	return d.ResolveEditorFrame()
}

func (d *Driver) scoreFrame(ctx context.Context, n *cdp.Node) frameCandidate {
	url := n.AttributeValue("src")
	name := n.AttributeValue("name")

	c := frameCandidate{node: n, url: url}
	if urlMatchesEditor(url) || name == editorFrameName {
		c.score += 3
	}
	if nodeCountMatching(ctx, n, toolbarSelectors) > 0 {
		c.score++
	}
	if nodeCountMatching(ctx, n, editableSelectors) > 0 {
		c.score++
		c.hasEditable = true
	}
	if nodeCountMatching(ctx, n, saveControlSelectors) > 0 {
		c.score++
	}
	return c
}

func urlMatchesEditor(url string) bool {
	for _, pattern := range editorURLPatterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}

func nodeCountMatching(ctx context.Context, frame *cdp.Node, selectors []string) int {
	total := 0
	for _, sel := range selectors {
		var found []*cdp.Node
		err := chromedp.Run(ctx, chromedp.Nodes(sel, &found, chromedp.ByQueryAll, chromedp.FromNode(frame), chromedp.AtLeast(0)))
		if err == nil {
			total += len(found)
		}
	}
	return total
}

// pickBest returns the highest-scoring candidate with at least editable
// presence. Ties resolve to the first candidate whose URL matched a
// known editor pattern.
func pickBest(candidates []frameCandidate) (frameCandidate, bool) {
	var best frameCandidate
	found := false
	for _, c := range candidates {
		if !c.hasEditable {
			continue
		}
		if !found || c.score > best.score {
			best = c
			found = true
			continue
		}
		if c.score == best.score && urlMatchesEditor(c.url) && !urlMatchesEditor(best.url) {
			best = c
		}
	}
	return best, found
}
