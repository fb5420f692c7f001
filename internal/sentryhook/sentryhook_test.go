package sentryhook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

func TestInit_EmptyDSNStaysDisabled(t *testing.T) {
	require := assert.New(t)
	require.NoError(Init("", "1.0.0"))
	require.False(IsEnabled())
}

func TestReportTerminal_NoopWhenDisabled(t *testing.T) {
	assert.NotPanics(t, func() {
		ReportTerminal("req-1", &errs.TerminalError{ReasonCode: "FAILED", Message: "x"})
	})
}

func TestFlush_NoopWhenDisabled(t *testing.T) {
	assert.NotPanics(t, Flush)
}
