package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/devconsole/naverpost-agent/internal/report"
)

// printHuman renders an UploadReport as colored terminal output,
// falling back to plain text when stdout isn't a terminal.
func printHuman(w io.Writer, rep report.UploadReport) {
	useColor := isatty.IsTerminal(os.Stdout.Fd())
	green := identity
	red := identity
	yellow := identity
	bold := identity
	if useColor {
		green = color.New(color.FgGreen).SprintFunc()
		red = color.New(color.FgRed).SprintFunc()
		yellow = color.New(color.FgYellow).SprintFunc()
		bold = color.New(color.Bold).SprintFunc()
	}

	statusLine := fmt.Sprintf("%s %s", bold(rep.Title), formatStatus(rep.OverallStatus, green, red, yellow))
	fmt.Fprintln(w, statusLine)
	fmt.Fprintf(w, "  request: %s  duration: %dms\n", rep.RequestID, rep.DurationMs)

	for _, stage := range []report.StepStage{report.StageA, report.StageB, report.StageC, report.StageD, report.StageE, report.StageF, report.StageG} {
		step, ok := rep.Steps[stage]
		if !ok {
			continue
		}
		marker := green("OK")
		switch step.Status {
		case report.StepFailed:
			marker = red("FAIL")
		case report.StepSkipped:
			marker = yellow("SKIP")
		case report.StepWarning:
			marker = yellow("WARN")
		case report.StepPartial:
			marker = yellow("PART")
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", marker, step.Stage, step.Message)
	}

	fmt.Fprintf(w, "  images: %d/%d uploaded (%s)\n", rep.ImageSummary.UploadedCount, rep.ImageSummary.RequestedCount, rep.ImageSummary.Status)
}

func formatStatus(status report.OverallStatus, green, red, yellow func(a ...interface{}) string) string {
	switch status {
	case report.StatusSuccessFull, report.StatusSuccessTextOnly:
		return green(string(status))
	case report.StatusSuccessWithImageWarn, report.StatusSuccessPartialImages:
		return yellow(string(status))
	default:
		return red(string(status))
	}
}

func identity(a ...interface{}) string {
	return fmt.Sprint(a...)
}
