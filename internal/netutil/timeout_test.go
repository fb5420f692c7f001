package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationTimeout(t *testing.T) {
	assert.Equal(t, SlowTimeout, OperationTimeout("navigate"))
	assert.Equal(t, SlowTimeout, OperationTimeout("resolveEditorFrame"))
	assert.Equal(t, UploadPoll, OperationTimeout("setFileOnChooser"))
	assert.Equal(t, SavePoll, OperationTimeout("waitForSaveSignal"))
	assert.Equal(t, VerifyPoll, OperationTimeout("waitForVerify"))
	assert.Equal(t, FastTimeout, OperationTimeout("currentUrl"))
	assert.Equal(t, FastTimeout, OperationTimeout("unknown_operation"))
}
