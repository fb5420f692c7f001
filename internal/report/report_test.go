package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOverallStatus_FailedWhenDraftFails(t *testing.T) {
	r := UploadReport{DraftSummary: DraftSummary{Success: false}}
	assert.Equal(t, StatusFailed, ComputeOverallStatus(r, true))
}

func TestComputeOverallStatus_FailedWhenStrictImagesPartial(t *testing.T) {
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusPartial},
	}
	assert.Equal(t, StatusFailed, ComputeOverallStatus(r, true))
}

func TestComputeOverallStatus_PartialImagesOKWhenNotStrict(t *testing.T) {
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusPartial},
	}
	assert.Equal(t, StatusSuccessPartialImages, ComputeOverallStatus(r, false))
}

func TestComputeOverallStatus_NoneImagesTextOnlyWhenNotStrict(t *testing.T) {
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusNone, RequestedCount: 2},
	}
	assert.Equal(t, StatusSuccessTextOnly, ComputeOverallStatus(r, false))
}

func TestComputeOverallStatus_NotRequestedIsFullSuccess(t *testing.T) {
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusNotRequested},
	}
	assert.Equal(t, StatusSuccessFull, ComputeOverallStatus(r, true))
}

func TestComputeOverallStatus_FullSuccess(t *testing.T) {
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusFull, RequestedCount: 2, EditorImageCount: 2},
	}
	assert.Equal(t, StatusSuccessFull, ComputeOverallStatus(r, true))
}

func TestComputeOverallStatus_PostSaveZeroObservedIsWarning(t *testing.T) {
	// every upload succeeded, but the post-save readback saw no images:
	// the save may have re-virtualized the editor DOM, so warn instead
	// of failing.
	r := UploadReport{
		DraftSummary: DraftSummary{Success: true},
		ImageSummary: ImageSummary{Status: ImageStatusFull, RequestedCount: 2, EditorImageCount: 0},
	}
	assert.Equal(t, StatusSuccessWithImageWarn, ComputeOverallStatus(r, true))
}

func TestFormatLine_HasFixedPrefix(t *testing.T) {
	line, err := FormatLine(UploadReport{SchemaVersion: SchemaVersion, RequestID: "req-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "NAVER_POST_RESULT_JSON:"))
	assert.Contains(t, line, `"request_id":"req-1"`)
}
