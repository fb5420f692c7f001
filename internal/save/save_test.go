package save

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDraftSaveURL(t *testing.T) {
	assert.True(t, isDraftSaveURL("https://post.naver.com/draft/save?id=1"))
	assert.True(t, isDraftSaveURL("https://post.naver.com/PostWriteForm.naver"))
	assert.False(t, isDraftSaveURL("https://post.naver.com/ping"))
}

func TestContainsSavePattern(t *testing.T) {
	assert.True(t, containsSavePattern("임시저장 되었습니다"))
	assert.True(t, containsSavePattern("Your draft was Saved"))
	assert.False(t, containsSavePattern("an unrelated dialog"))
}

func TestResult_DefaultsToFailure(t *testing.T) {
	var r Result
	assert.False(t, r.Success)
	assert.False(t, r.DraftNotFound)
}

func TestExtractDraftID(t *testing.T) {
	assert.Equal(t, "223344", ExtractDraftID("https://blog.naver.com/RabbitWrite.naver?logNo=223344"))
	assert.Equal(t, "d-9", ExtractDraftID("https://post.naver.com/autosave?foo=1&draftId=d-9"))
	assert.Equal(t, "88", ExtractDraftID("https://post.naver.com/save?postNo=88&x=y"))
	assert.Equal(t, "", ExtractDraftID("https://post.naver.com/autosave"))
}

func TestTimeoutError_CarriesDiagnostics(t *testing.T) {
	err := &TimeoutError{Diagnostics: Diagnostics{
		ObservedSpinner: true,
		LastStatusText:  "saving...",
		RecoveryCount:   1,
		ResponseCount:   4,
	}}
	msg := err.Error()
	assert.Contains(t, msg, "DraftSaveTimeout")
	assert.Contains(t, msg, `last_status="saving..."`)
	assert.Contains(t, msg, "recoveries=1")
	assert.Contains(t, msg, "responses=4")
}
