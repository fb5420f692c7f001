// Package orchestrator implements the Run Orchestrator: the single
// sequence that wires every core component together for one job, owns
// the browser context's lifetime, and assembles the final UploadReport.
// It is the only component permitted to tear down the driver.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devconsole/naverpost-agent/internal/config"
	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/errs"
	"github.com/devconsole/naverpost-agent/internal/insert"
	"github.com/devconsole/naverpost-agent/internal/metrics"
	"github.com/devconsole/naverpost-agent/internal/plan"
	"github.com/devconsole/naverpost-agent/internal/recovery"
	"github.com/devconsole/naverpost-agent/internal/report"
	"github.com/devconsole/naverpost-agent/internal/save"
	"github.com/devconsole/naverpost-agent/internal/sessiongate"
	"github.com/devconsole/naverpost-agent/internal/signal"
	"github.com/devconsole/naverpost-agent/internal/upload"
	"github.com/devconsole/naverpost-agent/internal/verify"
)

// Job is everything the orchestrator needs to run one post end to end.
type Job struct {
	RunID           string
	JobKey          string
	AccountID       string
	Mode            report.Mode
	URL             string
	Title           string
	Items           []plan.SourceItem
	ExpectedDraftID string
	// Place, when non-empty, is handed to the external PlaceAttacher
	// after body insertion. PlaceRequired promotes an attach failure
	// from a warning to a run failure.
	Place         string
	PlaceRequired bool
}

// PlaceAttacher is the external collaborator that attaches a place card
// to the open editor document. The core never drives the place-search
// UI itself.
type PlaceAttacher interface {
	Attach(ctx context.Context, place string) error
}

// Options bundles the collaborators and settings external to the core.
type Options struct {
	Config     config.Config
	Gate       sessiongate.Gate
	LockDir    string
	DebugRoot  string
	DriverOpts driver.Options
	Place      PlaceAttacher
	// Heartbeat, if set, is invoked at every stage boundary so an
	// external inactivity watchdog can observe forward progress.
	Heartbeat func(stage string)
}

// runner carries the per-run collaborators so the stage methods don't
// thread a dozen parameters each.
type runner struct {
	job  Job
	opts Options
	log  *slog.Logger

	d        *driver.Driver
	sig      *signal.Detector
	rec      *recovery.Manager
	up       *upload.Uploader
	ins      *insert.Inserter
	saver    *save.Saver
	verifier *verify.Verifier

	rep           report.UploadReport
	baseline      int
	gateRecovered bool
}

// Run executes the full sequence: lock → session preflight → browser
// start → navigate → editor ready → title → block insertion → place →
// save → post-save verification → report assembly.
func Run(ctx context.Context, job Job, opts Options) (report.UploadReport, error) {
	started := time.Now()
	r := &runner{
		job:  job,
		opts: opts,
		log:  slog.Default().With("run_id", job.RunID, "account_id", job.AccountID),
		rep: report.UploadReport{
			SchemaVersion: report.SchemaVersion,
			RequestID:     job.RunID,
			AccountID:     job.AccountID,
			Mode:          job.Mode,
			StartedAt:     started.UTC().Format(time.RFC3339),
			Title:         job.Title,
			Steps:         map[report.StepStage]report.Step{},
		},
	}

	err := r.run(ctx)
	return r.finalize(started, err), err
}

func (r *runner) run(ctx context.Context) error {
	contentHash := ContentHash(fmt.Sprintf("%s|%v", r.job.Title, r.job.Items))
	ttl := time.Duration(r.opts.Config.MaxIdempotencyLockAgeMs) * time.Millisecond
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if err := AcquireLock(r.opts.LockDir, r.job.JobKey, r.job.RunID, contentHash, ttl); err != nil {
		return err
	}
	defer ReleaseLock(r.opts.LockDir, r.job.JobKey)

	if err := r.stagePreflight(ctx); err != nil {
		return err
	}

	d, err := driver.New(ctx, r.opts.DriverOpts)
	if err != nil {
		return &errs.TerminalError{ReasonCode: "DRIVER_START_FAILED", Message: "browser did not start", Cause: err}
	}
	defer d.Close()
	r.wire(d)

	p, err := plan.BuildPlan(r.job.Items)
	if err != nil {
		return &errs.TerminalError{ReasonCode: "PLAN_BUILD_FAILED", Message: "source items did not form a plan", Cause: err}
	}
	state := plan.NewState()

	hard := time.Duration(r.opts.Config.StageHardTimeoutMs) * time.Millisecond
	if err := r.raceStage(ctx, "editor_ready", hard, r.stageEditorReady); err != nil {
		r.setStep(report.StageB, report.StepFailed, err.Error(), nil)
		return err
	}
	r.setStep(report.StageB, report.StepSuccess, "editor frame resolved and interactive", nil)

	r.baseline = r.up.EditorImageCount(ctx)
	r.up.SetBaseline(r.baseline)
	if r.baseline > 0 {
		r.log.Warn("pre-existing editor images at run start", "count", r.baseline)
	}

	if err := r.stageTitle(ctx, p); err != nil {
		return err
	}

	insertErr := r.stageInsertBlocks(ctx, p, state)
	r.assembleImageSteps(ctx, p, state)
	if insertErr != nil {
		return insertErr
	}

	if err := r.attachPlace(ctx); err != nil {
		return err
	}

	saveResult, saveErr := r.stageSave(ctx)
	if saveErr != nil {
		return saveErr
	}

	r.stageVerify(ctx, saveResult, p, state)
	return nil
}

// wire builds the component graph over a started driver, applying the
// configured knobs.
func (r *runner) wire(d *driver.Driver) {
	cfg := r.opts.Config
	r.d = d
	r.sig = signal.New(d)
	r.rec = recovery.New(d)
	r.up = upload.New(d, r.sig)
	r.up.MaxAttempts = cfg.MaxImageAttempts
	r.up.WaitBudget = time.Duration(cfg.ImageUploadTimeoutMs) * time.Millisecond
	r.up.SimulateFailure = cfg.SimulateImageUploadFailure
	r.ins = insert.New(d, r.sig, r.rec, r.up)
	r.ins.StrictQuoteEscape = cfg.StrictQuoteEscape
	r.saver = save.New(d, r.sig, r.rec)
	r.saver.WaitBudget = time.Duration(cfg.DraftSaveTimeoutMs) * time.Millisecond
	r.saver.Publish = r.job.Mode == report.ModePublish
	r.verifier = verify.New(d)
	r.verifier.Budget = time.Duration(cfg.DraftVerifyTimeoutMs) * time.Millisecond
}

// beginStage emits the heartbeat for an external watchdog and returns
// the closer that records the stage's duration.
func (r *runner) beginStage(stage string) func() {
	if r.opts.Heartbeat != nil {
		r.opts.Heartbeat(stage)
	}
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (r *runner) setStep(stage report.StepStage, status report.StepStatus, message string, data map[string]any) {
	r.rep.Steps[stage] = report.Step{Stage: stage, Status: status, Message: message, Data: data}
}

func (r *runner) stagePreflight(ctx context.Context) error {
	defer r.beginStage("preflight")()
	reason, err := r.opts.Gate.Preflight(ctx)
	if err != nil {
		r.setStep(report.StageA, report.StepFailed, "session preflight errored", nil)
		return &errs.TerminalError{ReasonCode: "PREFLIGHT_FAILED", Message: "session gate preflight errored", Cause: err}
	}
	if reason != nil {
		r.setStep(report.StageA, report.StepFailed, "session gate blocked before run", nil)
		return &errs.SessionBlockedError{Reason: *reason}
	}
	r.setStep(report.StageA, report.StepSuccess, "session preflight ok", nil)
	return nil
}

// stageEditorReady navigates to the editor, resolves its frame, and
// probes readiness: the frame resolved (which already requires an
// editable element) plus no spinner persisting through the whole probe
// window. One reload-based retry is allowed when configured. It runs
// inside the stage race, so it never writes report state — the caller
// records the step from its return value.
func (r *runner) stageEditorReady(ctx context.Context) error {
	defer r.beginStage("editor_ready")()

	tries := 1
	if r.opts.Config.ReloadEditorReady {
		tries = 2
	}
	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		if err := r.d.Navigate(r.job.URL); err != nil {
			lastErr = &errs.TerminalError{ReasonCode: "NAVIGATE_FAILED", Message: "editor URL did not load", Cause: err}
			continue
		}
		if err := r.d.ResolveEditorFrame(); err != nil {
			lastErr = err
			continue
		}
		if blocked := r.probeBlocked(ctx); blocked != nil {
			return blocked
		}
		if r.editorSettled(ctx) {
			return nil
		}
		lastErr = &errs.TerminalError{ReasonCode: "EDITOR_NOT_READY", Message: "editor stayed in a loading state"}
	}
	return lastErr
}

// editorSettled waits briefly for any spinner to clear; a spinner that
// never clears within the window means the editor is stuck loading.
func (r *runner) editorSettled(ctx context.Context) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := r.sig.Detect(ctx)
		if err == nil && !snap.Spinner {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

func (r *runner) probeBlocked(ctx context.Context) *errs.SessionBlockedError {
	snap, err := r.sig.Detect(ctx)
	if err == nil && snap.SessionBlocked {
		return &errs.SessionBlockedError{Reason: snap.BlockedReason}
	}
	return nil
}

// stageTitle types the post title and takes the title→body transition:
// when the first block is text, two Enters drop the caret straight into
// the body paragraph; otherwise the block inserter does its own focus
// work and no transition keys are sent.
func (r *runner) stageTitle(ctx context.Context, p *plan.PostPlan) error {
	defer r.beginStage("title")()
	if err := r.d.TypeText(r.job.Title); err != nil {
		r.setStep(report.StageD, report.StepFailed, "title input failed", nil)
		return &errs.TerminalError{ReasonCode: "TITLE_INPUT_FAILED", Message: "title did not enter the editor", Cause: err}
	}
	blocks := p.Blocks()
	if len(blocks) > 0 && blocks[0].Type == plan.BlockText {
		r.d.PressKey("Enter")
		r.d.PressKey("Enter")
	}
	r.setStep(report.StageD, report.StepSuccess, "title entered", nil)
	return nil
}

// stageInsertBlocks runs the exactly-once plan walk under the computed
// insert-blocks budget. A mid-run session block gets one external
// recovery attempt through the gate before it becomes terminal.
func (r *runner) stageInsertBlocks(ctx context.Context, p *plan.PostPlan, state *plan.PostPlanState) error {
	defer r.beginStage("insert_blocks")()

	budget := r.opts.Config.InsertBlocksBudget(p.TextLikeBlockCount(), len(p.ImageBlocks()))
	err := r.raceStage(ctx, "insert_blocks", budget, func(sctx context.Context) error {
		return r.insertAll(sctx, p, state)
	})

	inserted := state.InsertedBlockCount()
	data := map[string]any{"inserted": inserted, "planned": p.Len()}
	if err != nil {
		r.setStep(report.StageE, report.StepFailed, err.Error(), data)
		return err
	}
	r.setStep(report.StageE, report.StepSuccess, "all blocks inserted", data)
	return nil
}

func (r *runner) insertAll(ctx context.Context, p *plan.PostPlan, state *plan.PostPlanState) error {
	runBlock := func(ctx context.Context, block plan.PlanBlock) error {
		res := r.ins.InsertBlock(ctx, p, block)
		if res.Success {
			return nil
		}
		if res.ReasonCode == insert.ReasonSessionBlocked {
			return &errs.SessionBlockedError{Reason: res.BlockedReason}
		}
		return &errs.TerminalError{ReasonCode: string(res.ReasonCode), Message: "block insertion failed", Cause: fmt.Errorf("block %s via %s: %s", block.BlockID, res.Strategy, res.DebugNote)}
	}

	_, err := plan.ExecuteExactlyOnce(ctx, p, state, runBlock)
	if err == nil {
		return nil
	}

	// One external recovery attempt for a mid-run session redirection;
	// the exactly-once state makes the re-walk skip finished blocks.
	if sb, ok := errs.AsSessionBlocked(err); ok && !r.gateRecovered {
		r.gateRecovered = true
		reason, recErr := r.opts.Gate.Recover(ctx)
		if recErr == nil && reason == nil {
			r.log.Warn("session recovered mid-run, resuming block insertion", "blocked_reason", sb.Reason)
			if reErr := r.d.ReacquireEditorFrame(); reErr != nil {
				return err
			}
			_, err = plan.ExecuteExactlyOnce(ctx, p, state, runBlock)
			return err
		}
		if reason != nil {
			return &errs.SessionBlockedError{Reason: *reason}
		}
	}
	return err
}

// raceStage bounds fn by budget. On timeout the inner work is abandoned
// (the driver teardown at run end reclaims it) and a stage-timeout error
// carrying the debug capture path propagates.
func (r *runner) raceStage(ctx context.Context, stage string, budget time.Duration, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(sctx) }()

	select {
	case err := <-done:
		return err
	case <-sctx.Done():
		debugPath := r.captureDebug(stage, "STAGE_TIMEOUT")
		return &errs.StageTimeoutError{Stage: stage, Millis: budget.Milliseconds(), DebugPath: debugPath}
	}
}

// assembleImageSteps fills the per-image upload step and the image
// summary from the uploader's attempt log, regardless of whether the
// insert stage completed.
func (r *runner) assembleImageSteps(ctx context.Context, p *plan.PostPlan, state *plan.PostPlanState) {
	imageBlocks := p.ImageBlocks()
	uploaded := state.InsertedImageCount()

	r.rep.ImageSummary = report.ImageSummary{
		RequestedCount: len(imageBlocks),
		UploadedCount:  uploaded,
		MissingCount:   len(imageBlocks) - uploaded,
	}
	switch {
	case len(imageBlocks) == 0:
		r.rep.ImageSummary.Status = report.ImageStatusNotRequested
	case uploaded == len(imageBlocks):
		r.rep.ImageSummary.Status = report.ImageStatusFull
	case uploaded == 0:
		r.rep.ImageSummary.Status = report.ImageStatusNone
	default:
		r.rep.ImageSummary.Status = report.ImageStatusPartial
	}

	if len(imageBlocks) == 0 {
		r.setStep(report.StageC, report.StepSkipped, "no images requested", nil)
		return
	}

	attempts := r.up.AttemptLog()
	data := map[string]any{"attempts": attempts}
	switch r.rep.ImageSummary.Status {
	case report.ImageStatusFull:
		r.rep.ImageSummary.SampleRefs = r.up.SampleRefs(ctx, 3)
		r.setStep(report.StageC, report.StepSuccess, fmt.Sprintf("%d image(s) uploaded", uploaded), data)
	case report.ImageStatusPartial:
		r.rep.ImageSummary.SampleRefs = r.up.SampleRefs(ctx, 3)
		r.setStep(report.StageC, report.StepPartial, fmt.Sprintf("%d of %d images uploaded", uploaded, len(imageBlocks)), data)
	default:
		r.setStep(report.StageC, report.StepFailed, "no image made it into the editor", data)
	}
}

// attachPlace hands the place name to the external attacher. Failure is
// a logged warning unless the job marked the place required, in which
// case it ends the run before any save happens.
func (r *runner) attachPlace(ctx context.Context) error {
	if r.job.Place == "" || r.opts.Place == nil {
		return nil
	}
	defer r.beginStage("attach_place")()
	if err := r.opts.Place.Attach(ctx, r.job.Place); err != nil {
		if r.job.PlaceRequired {
			return &errs.TerminalError{ReasonCode: "PLACE_ATTACH_FAILED", Message: "required place card did not attach", Cause: err}
		}
		r.log.Warn("place attach failed, continuing without it", "place", r.job.Place, "error", err)
		return nil
	}
	r.log.Info("place attached", "place", r.job.Place)
	return nil
}

func (r *runner) stageSave(ctx context.Context) (save.Result, error) {
	defer r.beginStage("save")()

	// Hard bound around both save rounds: one click budget plus two
	// wait windows (the initial one and the post-recovery one). The
	// result travels through the channel so an abandoned timed-out
	// goroutine never shares a variable with this one.
	cfg := r.opts.Config
	total := time.Duration(cfg.DraftClickTimeoutMs+2*cfg.DraftSaveTimeoutMs) * time.Millisecond

	type outcome struct {
		res save.Result
		err error
	}
	sctx, cancel := context.WithTimeout(ctx, total)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		res, err := r.saver.Save(sctx)
		done <- outcome{res, err}
	}()

	var result save.Result
	var err error
	select {
	case o := <-done:
		result, err = o.res, o.err
	case <-sctx.Done():
		debugPath := r.captureDebug("save", "STAGE_TIMEOUT")
		err = &errs.StageTimeoutError{Stage: "save", Millis: total.Milliseconds(), DebugPath: debugPath}
	}
	r.rep.DraftSummary.Success = result.Success
	if err != nil {
		if sb, ok := errs.AsSessionBlocked(err); ok {
			r.setStep(report.StageF, report.StepFailed, sb.Error(), nil)
			return result, sb
		}
		reason := err.Error()
		r.rep.DraftSummary.FailureReason = &reason
		r.setStep(report.StageF, report.StepFailed, reason, nil)
		debugPath := r.captureDebug("save", "DRAFT_SAVE_TIMEOUT")
		var te *save.TimeoutError
		if errors.As(err, &te) {
			return result, &errs.TerminalError{ReasonCode: "DRAFT_SAVE_TIMEOUT", Message: te.Error(), DebugPath: debugPath, Cause: err}
		}
		return result, err
	}
	if result.DraftNotFound {
		reason := "DRAFT_NOT_FOUND_AFTER_SUCCESS_SIGNAL"
		r.rep.DraftSummary.Success = false
		r.rep.DraftSummary.FailureReason = &reason
		r.setStep(report.StageF, report.StepFailed, reason, nil)
		return result, nil
	}
	via := string(result.Via)
	r.rep.DraftSummary.VerifiedVia = &via
	r.setStep(report.StageF, report.StepSuccess, "save signal observed", map[string]any{"verified_via": via})
	return result, nil
}

// stageVerify runs the two independent post-save checks: the drafts
// panel lookup and the editor image-count reconciliation against the
// run-start baseline.
func (r *runner) stageVerify(ctx context.Context, saveResult save.Result, p *plan.PostPlan, state *plan.PostPlanState) {
	defer r.beginStage("verify")()

	if !saveResult.Success {
		r.setStep(report.StageG, report.StepSkipped, "skipped: save did not succeed", nil)
		return
	}

	observed := r.up.EditorImageCount(ctx)
	r.rep.ImageSummary.EditorImageCount = observed

	draftID := r.job.ExpectedDraftID
	if draftID == "" {
		draftID = saveResult.DraftID
	}
	vr, _ := r.verifier.Verify(ctx, r.job.Title, draftID)
	outcome := classifyPostSave(observed, r.baseline, state.InsertedImageCount())

	data := map[string]any{"draft_found": vr.Found, "attempts": vr.Attempts}
	if outcome != "" {
		data["reason_code"] = outcome
	}

	switch {
	case !vr.Found:
		r.setStep(report.StageG, report.StepFailed, "draft not located in drafts panel", data)
		r.rep.DraftSummary.Success = false
		reason := "DRAFT_NOT_FOUND_AFTER_SUCCESS_SIGNAL"
		r.rep.DraftSummary.FailureReason = &reason
	case outcome == "IMAGE_UPLOAD_DUPLICATED":
		r.setStep(report.StageG, report.StepFailed, "more editor images than uploads after baseline subtraction", data)
	case outcome == "IMAGE_VERIFY_POSTSAVE_FAILED" && observed == 0:
		r.setStep(report.StageG, report.StepWarning, "editor reported zero images after save; DOM may have re-virtualized", data)
	case outcome == "IMAGE_VERIFY_POSTSAVE_FAILED":
		r.setStep(report.StageG, report.StepPartial, "fewer editor images than uploads after baseline subtraction", data)
	default:
		if vr.MatchURL != "" {
			data["match_url"] = vr.MatchURL
		}
		r.setStep(report.StageG, report.StepSuccess, "draft confirmed in drafts panel", data)
	}
}

// classifyPostSave compares the post-save editor image count against
// the run-start baseline and the number of uploads this run performed.
// Returns the empty string when the counts reconcile, or the typed
// reason otherwise. An observed total above baseline+uploaded means a
// duplicate slipped past per-attempt detection; zero observed after a
// successful save is only a soft signal because the save can blank the
// editor's rendered DOM.
func classifyPostSave(observed, baseline, uploaded int) string {
	if uploaded == 0 {
		return ""
	}
	delta := observed - baseline
	switch {
	case delta == uploaded:
		return ""
	case delta > uploaded:
		return "IMAGE_UPLOAD_DUPLICATED"
	default:
		return "IMAGE_VERIFY_POSTSAVE_FAILED"
	}
}

// captureDebug writes the failure bundle and returns its directory, or
// "" when capture was impossible or itself failed (logged, not fatal).
func (r *runner) captureDebug(stage, reasonCode string) string {
	if r.opts.DebugRoot == "" || r.d == nil {
		return ""
	}
	shot, _ := r.d.Screenshot()
	html, _ := r.d.HTMLSnapshot()

	console := make([]string, 0, 50)
	for _, m := range r.d.RecentConsole() {
		console = append(console, m.Level+": "+m.Text)
	}
	var netURLs []string
	for _, resp := range r.d.RecentResponses() {
		netURLs = append(netURLs, fmt.Sprintf("%d %s", resp.Status, resp.URL))
	}

	capture := report.DebugCapture{
		Stage:       stage,
		ReasonCode:  reasonCode,
		Screenshot:  shot,
		HTML:        html,
		Console:     console,
		NetworkURLs: netURLs,
		PageErrors:  r.d.RecentPageErrors(),
	}
	if r.ins != nil {
		capture.Fixture = r.ins.LastFixture
	}

	dir, err := report.WriteDebugCapture(r.opts.DebugRoot, r.job.RunID, capture)
	if err != nil {
		r.log.Warn("debug capture failed", "stage", stage, "error", err)
		return ""
	}
	r.log.Info("debug artifacts written", "stage", stage, "dir", dir)
	return dir
}

// finalize stamps timing, marks unreached stages skipped, and derives
// the overall status.
func (r *runner) finalize(started time.Time, err error) report.UploadReport {
	finished := time.Now()
	r.rep.FinishedAt = finished.UTC().Format(time.RFC3339)
	r.rep.DurationMs = finished.Sub(started).Milliseconds()

	for _, stage := range []report.StepStage{report.StageA, report.StageB, report.StageC, report.StageD, report.StageE, report.StageF, report.StageG} {
		if _, ok := r.rep.Steps[stage]; !ok {
			r.rep.Steps[stage] = report.Step{Stage: stage, Status: report.StepSkipped, Message: "not reached"}
		}
	}

	if err != nil && !r.rep.DraftSummary.Success && r.rep.DraftSummary.FailureReason == nil {
		reason := err.Error()
		r.rep.DraftSummary.FailureReason = &reason
	}

	r.rep.OverallStatus = report.ComputeOverallStatus(r.rep, r.opts.Config.StrictImages)
	metrics.RunsTotal.WithLabelValues(string(r.rep.OverallStatus)).Inc()
	return r.rep
}
