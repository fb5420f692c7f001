// Package sentryhook wires terminal run errors into Sentry so an
// unattended worker's failures reach an operator dashboard. With no DSN
// configured every function is a safe no-op.
package sentryhook

import (
	"errors"
	"runtime"
	"time"

	gosentry "github.com/getsentry/sentry-go"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

var enabled bool

// Init initializes the Sentry SDK for this run. When dsn is empty, every
// other function in this package becomes a safe no-op.
func Init(dsn, version string) error {
	if dsn == "" {
		enabled = false
		return nil
	}

	if err := gosentry.Init(gosentry.ClientOptions{
		Dsn:              dsn,
		Release:          "naverpost-agent@" + version,
		AttachStacktrace: true,
		SampleRate:       1.0,
	}); err != nil {
		return err
	}

	gosentry.ConfigureScope(func(scope *gosentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("version", version)
	})

	enabled = true
	return nil
}

// IsEnabled returns whether Sentry reporting is active.
func IsEnabled() bool { return enabled }

// Flush waits up to 2 seconds for buffered events to be sent, called at
// the end of every run regardless of outcome.
func Flush() {
	if !enabled {
		return
	}
	gosentry.Flush(2 * time.Second)
}

// RecoverPanic captures an in-flight panic, flushes, then re-panics.
// cmd/postagent's run and publish commands defer this once per run.
func RecoverPanic() {
	if !enabled {
		return
	}
	if err := recover(); err != nil {
		gosentry.CurrentHub().Recover(err)
		gosentry.Flush(2 * time.Second)
		panic(err)
	}
}

// ReportTerminal captures a terminal run error. When the error carries
// a typed reasonCode and debug path they are attached as scope context.
func ReportTerminal(requestID string, err error) {
	if !enabled || err == nil {
		return
	}
	gosentry.WithScope(func(scope *gosentry.Scope) {
		run := map[string]interface{}{"request_id": requestID}
		var te *errs.TerminalError
		if errors.As(err, &te) {
			scope.SetTag("reason_code", te.ReasonCode)
			run["debug_path"] = te.DebugPath
		}
		var sb *errs.SessionBlockedError
		if errors.As(err, &sb) {
			scope.SetTag("blocked_reason", string(sb.Reason))
		}
		scope.SetContext("run", run)
		gosentry.CaptureException(err)
	})
}
