// Package sessiongate defines the external collaborator contract the
// Run Orchestrator depends on for session readiness. The core never
// implements login or captcha solving itself; it only consumes this
// interface's verdict.
package sessiongate

import (
	"context"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

// Gate is implemented by whatever external component owns
// authentication (a human-in-the-loop CLI prompt, a cookie-jar
// restorer, a remote session broker). The core only calls Preflight
// and, once, Recover.
type Gate interface {
	// Preflight reports whether the session is currently usable. A
	// non-nil BlockedReason means the caller must not proceed.
	Preflight(ctx context.Context) (*errs.BlockedReason, error)

	// Recover attempts one remediation pass (refresh cookies, prompt a
	// human, wait for a 2FA approval) and reports the resulting
	// BlockedReason, or nil if the session is now usable.
	Recover(ctx context.Context) (*errs.BlockedReason, error)
}

// AlwaysReady is a no-op Gate for environments where session
// management is handled entirely upstream (e.g. a pre-authenticated
// remote debugging profile). It never reports a block and never
// attempts recovery.
type AlwaysReady struct{}

func (AlwaysReady) Preflight(ctx context.Context) (*errs.BlockedReason, error) { return nil, nil }
func (AlwaysReady) Recover(ctx context.Context) (*errs.BlockedReason, error)   { return nil, nil }
