package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSString_EscapesQuotesAndNewlines(t *testing.T) {
	assert.Equal(t, `"plain"`, jsString("plain"))
	assert.Equal(t, `"say \"hi\""`, jsString(`say "hi"`))
	assert.Equal(t, `"line\nbreak"`, jsString("line\nbreak"))
}

func TestJSString_SafeAgainstScriptBreakout(t *testing.T) {
	// A payload trying to close the literal must stay inside it.
	out := jsString(`'); alert(1); ('`)
	assert.Equal(t, `"'); alert(1); ('"`, out)
}
