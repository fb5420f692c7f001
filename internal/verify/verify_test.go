package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTitle_ExactNormalizedMatch(t *testing.T) {
	candidates := []Candidate{{Title: "  My   Parking  Trip ", URL: "/edit/1"}}
	match, ok := matchTitle(candidates, "My Parking Trip")
	assert.True(t, ok)
	assert.Equal(t, "/edit/1", match.URL)
}

func TestMatchTitle_SubstringWithSixCharPivot(t *testing.T) {
	candidates := []Candidate{{Title: "A very long draft title about parking garages", URL: "/edit/2"}}
	match, ok := matchTitle(candidates, "parking")
	assert.True(t, ok)
	assert.Equal(t, "/edit/2", match.URL)
}

func TestMatchTitle_RejectsBelowPivotLength(t *testing.T) {
	candidates := []Candidate{{Title: "short", URL: "/edit/3"}}
	_, ok := matchTitle(candidates, "ab")
	assert.False(t, ok)
}

func TestMatchTitle_NoCandidatesMatch(t *testing.T) {
	candidates := []Candidate{{Title: "Completely unrelated", URL: "/edit/4"}}
	_, ok := matchTitle(candidates, "My Parking Trip")
	assert.False(t, ok)
}
