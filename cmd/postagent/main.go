// Command postagent drives one (or, under serve, a polled stream of)
// Naver post submissions through the core state machines.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/devconsole/naverpost-agent/internal/config"
	"github.com/devconsole/naverpost-agent/internal/driver"
	"github.com/devconsole/naverpost-agent/internal/metrics"
	"github.com/devconsole/naverpost-agent/internal/orchestrator"
	"github.com/devconsole/naverpost-agent/internal/plan"
	"github.com/devconsole/naverpost-agent/internal/queue"
	"github.com/devconsole/naverpost-agent/internal/report"
	"github.com/devconsole/naverpost-agent/internal/sentryhook"
	"github.com/devconsole/naverpost-agent/internal/sessiongate"
	"github.com/devconsole/naverpost-agent/internal/util"
)

const version = "0.1.0"

var (
	flagURL         string
	flagTitle       string
	flagTextBlock   []string
	flagSectionAt   []int
	flagImagePath   []string
	flagPlace       string
	flagRunID       string
	flagAccountID   string
	flagDraftID     string
	flagProjectDir  string
	flagLockDir     string
	flagDebugRoot   string
	flagQueueDir    string
	flagMetricsAddr string
	flagSentryDSN   string
	flagRemoteDebug string
	flagHeadless    bool
	flagJSONOutput  bool

	flagImageTimeoutMs   int
	flagSaveTimeoutMs    int
	flagMaxImageAttempts int
	flagStrictQuote      bool
	flagStrictImages     bool
	flagReloadReady      bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "postagent",
		Short: "postagent drives Naver draft/publish submissions through a headless editor session",
	}
	root.PersistentFlags().StringVar(&flagProjectDir, "project-dir", ".", "project directory consulted for .naverpost-agent.yaml")
	root.PersistentFlags().StringVar(&flagLockDir, "lock-dir", defaultLockDir(), "directory holding idempotency lock files")
	root.PersistentFlags().StringVar(&flagDebugRoot, "debug-root", defaultDebugRoot(), "root directory for debug artifact capture")
	root.PersistentFlags().StringVar(&flagSentryDSN, "sentry-dsn", os.Getenv("NAVERPOST_SENTRY_DSN"), "Sentry DSN for error reporting (empty disables)")
	root.PersistentFlags().StringVar(&flagRemoteDebug, "remote-debugging-addr", "", "attach to an already-running Chrome DevTools endpoint (host:port)")
	root.PersistentFlags().BoolVar(&flagHeadless, "headless", true, "run the browser headless")
	root.PersistentFlags().BoolVar(&flagJSONOutput, "json", false, "print only the NAVER_POST_RESULT_JSON line")

	root.PersistentFlags().IntVar(&flagImageTimeoutMs, "image-timeout-ms", 0, "image upload wait budget (0 keeps config/default)")
	root.PersistentFlags().IntVar(&flagSaveTimeoutMs, "save-timeout-ms", 0, "draft save wait budget (0 keeps config/default)")
	root.PersistentFlags().IntVar(&flagMaxImageAttempts, "max-image-attempts", 0, "per-image attempt cap (0 keeps config/default)")
	root.PersistentFlags().BoolVar(&flagStrictQuote, "strict-quote-escape", true, "fail a section title when the caret stays inside the quote block")
	root.PersistentFlags().BoolVar(&flagStrictImages, "strict-images", false, "fail the run when any requested image is missing")
	root.PersistentFlags().BoolVar(&flagReloadReady, "reload-editor-ready", false, "allow one reload when the editor never becomes interactive")

	root.AddCommand(runCmd(), publishCmd(), dryRunCmd(), serveCmd())
	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "submit one post and save it as a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeOne(cmd, report.ModeDraft)
		},
	}
	bindJobFlags(cmd)
	return cmd
}

func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "submit one post and publish it immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeOne(cmd, report.ModePublish)
		},
	}
	bindJobFlags(cmd)
	return cmd
}

func dryRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "build and print the plan without driving a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := buildSourceItems()
			p, err := plan.BuildPlan(items)
			if err != nil {
				return err
			}
			for _, b := range p.Blocks() {
				fmt.Printf("%s\t%s\n", b.BlockID, b.Type)
			}
			return nil
		},
	}
	bindJobFlags(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "poll a filesystem job queue and run each job, exposing Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().StringVar(&flagQueueDir, "queue-dir", "./queue", "directory polled for job files")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	return cmd
}

func bindJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagURL, "url", "", "editor URL to navigate to")
	cmd.Flags().StringVar(&flagTitle, "title", "", "post title")
	cmd.Flags().StringArrayVar(&flagTextBlock, "text", nil, "a text block (repeatable, in order)")
	cmd.Flags().IntSliceVar(&flagSectionAt, "section-at", nil, "indexes into --text that are section titles instead of paragraphs")
	cmd.Flags().StringArrayVar(&flagImagePath, "image", nil, "an absolute image path (repeatable, appended after text blocks)")
	cmd.Flags().StringVar(&flagPlace, "place", "", "place name to attach after body insertion (optional)")
	cmd.Flags().StringVar(&flagRunID, "run-id", "", "stable run id for idempotent retries (random if empty)")
	cmd.Flags().StringVar(&flagAccountID, "account", "", "account id recorded in the result line")
	cmd.Flags().StringVar(&flagDraftID, "draft-id", "", "known draft id for URL-based verification")
}

func buildSourceItems() []plan.SourceItem {
	sectionSet := map[int]bool{}
	for _, i := range flagSectionAt {
		sectionSet[i] = true
	}
	items := make([]plan.SourceItem, 0, len(flagTextBlock)+len(flagImagePath))
	for i, t := range flagTextBlock {
		kind := plan.BlockText
		if sectionSet[i] {
			kind = plan.BlockSectionTitle
		}
		items = append(items, plan.SourceItem{Type: kind, Text: t})
	}
	for _, img := range flagImagePath {
		items = append(items, plan.SourceItem{Type: plan.BlockImage, ImagePath: img})
	}
	return items
}

// flagOverrides reports only the knob flags the user actually set, so
// unset flags keep config-file and env values.
func flagOverrides(cmd *cobra.Command) *config.FlagOverrides {
	fo := &config.FlagOverrides{}
	if cmd.Flags().Changed("image-timeout-ms") {
		fo.ImageUploadTimeoutMs = &flagImageTimeoutMs
	}
	if cmd.Flags().Changed("save-timeout-ms") {
		fo.DraftSaveTimeoutMs = &flagSaveTimeoutMs
	}
	if cmd.Flags().Changed("max-image-attempts") {
		fo.MaxImageAttempts = &flagMaxImageAttempts
	}
	if cmd.Flags().Changed("strict-quote-escape") {
		fo.StrictQuoteEscape = &flagStrictQuote
	}
	if cmd.Flags().Changed("strict-images") {
		fo.StrictImages = &flagStrictImages
	}
	if cmd.Flags().Changed("reload-editor-ready") {
		fo.ReloadEditorReady = &flagReloadReady
	}
	return fo
}

func setupLogging() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

func newRunID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func defaultLockDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".naverpost-agent/locks"
	}
	return filepath.Join(home, ".naverpost-agent", "locks")
}

func defaultDebugRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".naverpost-agent/debug"
	}
	return filepath.Join(home, ".naverpost-agent", "debug")
}

func executeOne(cmd *cobra.Command, mode report.Mode) error {
	ctx := cmd.Context()
	logger := setupLogging()
	if err := sentryhook.Init(flagSentryDSN, version); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
	defer sentryhook.Flush()
	defer sentryhook.RecoverPanic()

	cfg, err := config.Load(flagProjectDir, flagOverrides(cmd))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := flagRunID
	if runID == "" {
		runID = newRunID()
	}
	job := orchestrator.Job{
		RunID:           runID,
		JobKey:          runID,
		AccountID:       flagAccountID,
		Mode:            mode,
		URL:             flagURL,
		Title:           flagTitle,
		Items:           buildSourceItems(),
		ExpectedDraftID: flagDraftID,
		Place:           flagPlace,
	}
	rep, runErr := orchestrator.Run(ctx, job, runOptions(cfg, logger))

	line, formatErr := report.FormatLine(rep)
	if formatErr != nil {
		return formatErr
	}
	fmt.Println(line)
	if !flagJSONOutput {
		printHuman(os.Stdout, rep)
	}

	if runErr != nil {
		logger.Error("run failed", "run_id", runID, "error", runErr)
		sentryhook.ReportTerminal(runID, runErr)
		return runErr
	}
	return nil
}

func runOptions(cfg config.Config, logger *slog.Logger) orchestrator.Options {
	return orchestrator.Options{
		Config:    cfg,
		Gate:      sessiongate.AlwaysReady{},
		LockDir:   flagLockDir,
		DebugRoot: flagDebugRoot,
		DriverOpts: driver.Options{
			RemoteDebuggingAddr: flagRemoteDebug,
			Headless:            flagHeadless,
		},
		Heartbeat: func(stage string) {
			logger.Debug("stage heartbeat", "stage", stage)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := setupLogging()
	if err := sentryhook.Init(flagSentryDSN, version); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
	defer sentryhook.Flush()

	util.SafeGo(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		logger.Info("metrics server listening", "addr", flagMetricsAddr)
		if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	})

	q := queue.NewFileQueue(flagQueueDir)
	cfg, err := config.Load(flagProjectDir, flagOverrides(cmd))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := q.Next(ctx)
		if err != nil {
			logger.Error("queue poll failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if job == nil {
			time.Sleep(2 * time.Second)
			continue
		}

		items := make([]plan.SourceItem, 0, len(job.TextBlocks)+len(job.ImagePaths))
		for _, t := range job.TextBlocks {
			items = append(items, plan.SourceItem{Type: plan.BlockText, Text: t})
		}
		for _, img := range job.ImagePaths {
			items = append(items, plan.SourceItem{Type: plan.BlockImage, ImagePath: img})
		}

		_, runErr := orchestrator.Run(ctx, orchestrator.Job{
			RunID:     job.RunID,
			JobKey:    job.RunID,
			AccountID: job.AccountID,
			Mode:      report.Mode(job.Mode),
			URL:       job.URL,
			Title:     job.Title,
			Items:     items,
			Place:     job.Place,
		}, runOptions(cfg, logger))
		if runErr != nil {
			logger.Error("job failed", "run_id", job.RunID, "error", runErr)
			sentryhook.ReportTerminal(job.RunID, runErr)
		}
		if err := q.Ack(ctx, job.RunID); err != nil {
			logger.Error("ack failed", "run_id", job.RunID, "error", err)
		}
	}
}
