package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_CapsShiftAtFour(t *testing.T) {
	b3 := backoff(5) - time.Duration(0) // shift capped at 4 regardless of attempt 5 or 6
	b4 := backoff(6)
	// both attempts 5 and 6 fall on the capped shift, so their base
	// component (ignoring jitter) should be identical: 700ms*2^4=11200ms.
	assert.GreaterOrEqual(t, b3, 11200*time.Millisecond)
	assert.GreaterOrEqual(t, b4, 11200*time.Millisecond)
	assert.Less(t, b3, 11200*time.Millisecond+250*time.Millisecond+time.Millisecond)
}

func TestBackoff_FirstAttemptWithinJitterRange(t *testing.T) {
	b1 := backoff(1)
	assert.GreaterOrEqual(t, b1, 700*time.Millisecond)
	assert.Less(t, b1, 950*time.Millisecond+time.Millisecond)
}

func TestLooksLikeUploadURL(t *testing.T) {
	assert.True(t, looksLikeUploadURL("https://blogfiles.pstatic.net/upload/abc.jpg"))
	assert.True(t, looksLikeUploadURL("https://edit.naver.com/IMAGE/attach"))
	assert.False(t, looksLikeUploadURL("https://example.com/ping"))
}

func TestSetBaseline_RecordsValue(t *testing.T) {
	u := &Uploader{}
	u.SetBaseline(3)
	assert.Equal(t, 3, u.Baseline())
}

func TestUploadOne_SimulatedFailureIsTerminalAndRecorded(t *testing.T) {
	u := &Uploader{SimulateFailure: string(ClassUIFailed)}
	res, err := u.UploadOne(context.Background(), "/tmp/a.jpg", 1)
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, string(ClassUIFailed), res.Classification)
	assert.Equal(t, 1, res.Attempts)

	log := u.AttemptLog()
	assert.Len(t, log, 1)
	assert.Equal(t, 1, log[0].ImageIndex)
	assert.Equal(t, string(ClassUIFailed), log[0].Classification)
}

func TestUploadOne_SimulatedStuckRetriesToMaxAttempts(t *testing.T) {
	u := &Uploader{SimulateFailure: string(ClassStuck), MaxAttempts: 2}
	res, err := u.UploadOne(context.Background(), "/tmp/a.jpg", 2)
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, string(ClassStuck), res.Classification)
	assert.Len(t, u.AttemptLog(), 2)
}
