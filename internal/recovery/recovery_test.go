package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_ZeroValueIsEmptyUnapplied(t *testing.T) {
	var o Outcome
	assert.Equal(t, Step(""), o.Step)
	assert.False(t, o.Applied)
}

func TestStepConstants_AreDistinct(t *testing.T) {
	steps := []Step{StepDismissBySelector, StepDismissByText, StepEscapeKey, StepHideOverlayStyle, StepReacquireFrame, StepNone}
	seen := make(map[Step]bool)
	for _, s := range steps {
		assert.False(t, seen[s], "duplicate step constant %s", s)
		seen[s] = true
	}
}
