// Package report defines the UploadReport schema emitted as the run's
// single structured output line, plus the debug-artifact directory
// writer used on stage failures.
package report

import (
	"encoding/json"
	"fmt"
)

const (
	SchemaVersion = "1.0"
	resultPrefix  = "NAVER_POST_RESULT_JSON:"
)

// Mode is the closed set of run modes.
type Mode string

const (
	ModeDraft   Mode = "draft"
	ModePublish Mode = "publish"
	ModeDryRun  Mode = "dry_run"
)

// OverallStatus is the closed set of final run outcomes.
type OverallStatus string

const (
	StatusSuccessFull          OverallStatus = "SUCCESS_FULL"
	StatusSuccessPartialImages OverallStatus = "SUCCESS_PARTIAL_IMAGES"
	StatusSuccessTextOnly      OverallStatus = "SUCCESS_TEXT_ONLY"
	StatusSuccessWithImageWarn OverallStatus = "SUCCESS_WITH_IMAGE_VERIFY_WARNING"
	StatusFailed               OverallStatus = "FAILED"
)

// StepStage is one of the seven lettered stages tracked in the report.
type StepStage string

const (
	StageA StepStage = "A" // load post / resolve session
	StageB StepStage = "B" // load editor frame / ready check
	StageC StepStage = "C" // image uploads
	StageD StepStage = "D" // title input
	StageE StepStage = "E" // body block insertion
	StageF StepStage = "F" // draft save / publish
	StageG StepStage = "G" // verify
)

// StepStatus is the closed set of per-step outcomes.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepPartial StepStatus = "partial"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
	StepWarning StepStatus = "warning"
)

// Step is one lettered stage's recorded outcome.
type Step struct {
	Stage   StepStage      `json:"stage"`
	Status  StepStatus     `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ImageSummaryStatus is the closed set of image-phase outcomes.
type ImageSummaryStatus string

const (
	ImageStatusNotRequested ImageSummaryStatus = "not_requested"
	ImageStatusFull         ImageSummaryStatus = "full"
	ImageStatusPartial      ImageSummaryStatus = "partial"
	ImageStatusNone         ImageSummaryStatus = "none"
)

// ImageSummary reports the aggregate image-upload outcome.
type ImageSummary struct {
	RequestedCount   int                `json:"requested_count"`
	UploadedCount    int                `json:"uploaded_count"`
	MissingCount     int                `json:"missing_count"`
	EditorImageCount int                `json:"editor_image_count"`
	Status           ImageSummaryStatus `json:"status"`
	SampleRefs       []string           `json:"sample_refs,omitempty"`
}

// DraftSummary reports the save/verify outcome.
type DraftSummary struct {
	Success       bool    `json:"success"`
	VerifiedVia   *string `json:"verified_via,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
}

// UploadReport is the single structured artifact the core emits per run.
type UploadReport struct {
	SchemaVersion string             `json:"schema_version"`
	RequestID     string             `json:"request_id"`
	AccountID     string             `json:"account_id"`
	Mode          Mode               `json:"mode"`
	StartedAt     string             `json:"started_at"`
	FinishedAt    string             `json:"finished_at"`
	DurationMs    int64              `json:"duration_ms"`
	Title         string             `json:"title"`
	Steps         map[StepStage]Step `json:"steps"`
	ImageSummary  ImageSummary       `json:"image_summary"`
	DraftSummary  DraftSummary       `json:"draft_summary"`
	OverallStatus OverallStatus      `json:"overall_status"`
}

// ComputeOverallStatus derives the final run outcome: FAILED iff the
// draft did not save, or strict image enforcement is on and the image
// phase came back partial or none. A run whose uploads all succeeded
// but whose post-save count readback observed zero editor images (the
// editor re-virtualizes its DOM on save) is demoted to
// SUCCESS_WITH_IMAGE_VERIFY_WARNING rather than failed. Under
// non-strict enforcement a fully-missing image phase still saves the
// text, hence SUCCESS_TEXT_ONLY.
func ComputeOverallStatus(r UploadReport, strictImages bool) OverallStatus {
	if !r.DraftSummary.Success {
		return StatusFailed
	}
	if strictImages && (r.ImageSummary.Status == ImageStatusPartial || r.ImageSummary.Status == ImageStatusNone) {
		return StatusFailed
	}
	switch r.ImageSummary.Status {
	case ImageStatusNotRequested:
		return StatusSuccessFull
	case ImageStatusFull:
		if r.ImageSummary.RequestedCount > 0 && r.ImageSummary.EditorImageCount == 0 {
			return StatusSuccessWithImageWarn
		}
		return StatusSuccessFull
	case ImageStatusPartial:
		return StatusSuccessPartialImages
	default: // ImageStatusNone
		return StatusSuccessTextOnly
	}
}

// FormatLine renders the report as the single prefixed output line the
// CLI writes to stdout.
func FormatLine(r UploadReport) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal upload report: %w", err)
	}
	return resultPrefix + string(body), nil
}
