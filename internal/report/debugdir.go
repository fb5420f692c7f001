package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DebugCapture collects the artifacts written to one failure's debug
// directory: a timeout/stage report, a full-page screenshot, an HTML
// dump of the editor frame, and the bounded console/network/page-error
// traces captured by the driver's subscriptions.
type DebugCapture struct {
	Stage         string
	ReasonCode    string
	Screenshot    []byte
	HTML          string
	Console       []string
	NetworkURLs   []string
	PageErrors    []string
	Fixture       *Fixture
}

// Fixture is attached only for text-input failures: the plan context,
// expected anchors, and what was actually observed.
type Fixture struct {
	BlockID        string   `json:"block_id"`
	ExpectedText   string   `json:"expected_text"`
	ExpectedAnchors []string `json:"expected_anchors"`
	ObservedSample string   `json:"observed_sample"`
}

// WriteDebugCapture writes capture under root/<YYYY-MM-DD>/<runID>-<stage>/,
// creating the directory lazily. These directories are the only
// filesystem state the core writes. It returns the directory path, or
// an error if capture itself failed (which callers log rather than
// treat as fatal).
func WriteDebugCapture(root, runID string, capture DebugCapture) (string, error) {
	bucket := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(root, bucket, fmt.Sprintf("%s-%s", runID, capture.Stage))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	stageReport := map[string]any{
		"stage":        capture.Stage,
		"reason_code":  capture.ReasonCode,
		"console":      capture.Console,
		"network_urls": capture.NetworkURLs,
		"page_errors":  capture.PageErrors,
	}
	if err := writeJSON(filepath.Join(dir, "timeout_report.json"), stageReport); err != nil {
		return dir, err
	}

	if len(capture.Screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "screenshot.jpg"), capture.Screenshot, 0o644); err != nil {
			return dir, fmt.Errorf("write screenshot: %w", err)
		}
	}
	if capture.HTML != "" {
		if err := os.WriteFile(filepath.Join(dir, "editor_frame.html"), []byte(capture.HTML), 0o644); err != nil {
			return dir, fmt.Errorf("write html dump: %w", err)
		}
	}
	if capture.Fixture != nil {
		if err := writeJSON(filepath.Join(dir, "debug_fixture.json"), capture.Fixture); err != nil {
			return dir, err
		}
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
