package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPostSave_NoUploadsAlwaysReconciles(t *testing.T) {
	assert.Equal(t, "", classifyPostSave(0, 0, 0))
	assert.Equal(t, "", classifyPostSave(5, 5, 0))
}

func TestClassifyPostSave_ExactDeltaReconciles(t *testing.T) {
	assert.Equal(t, "", classifyPostSave(2, 0, 2))
	assert.Equal(t, "", classifyPostSave(3, 1, 2))
}

func TestClassifyPostSave_ExcessIsDuplicated(t *testing.T) {
	// baseline 0, 2 uploads, 3 observed: one duplicate slipped through.
	assert.Equal(t, "IMAGE_UPLOAD_DUPLICATED", classifyPostSave(3, 0, 2))
	assert.Equal(t, "IMAGE_UPLOAD_DUPLICATED", classifyPostSave(4, 1, 2))
}

func TestClassifyPostSave_ShortfallIsSoftFailure(t *testing.T) {
	assert.Equal(t, "IMAGE_VERIFY_POSTSAVE_FAILED", classifyPostSave(1, 0, 2))
	// observed zero after save: the editor may have re-virtualized.
	assert.Equal(t, "IMAGE_VERIFY_POSTSAVE_FAILED", classifyPostSave(0, 0, 2))
}
