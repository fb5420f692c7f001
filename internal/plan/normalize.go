package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// zeroWidthChars are stripped from text content before it is ever hashed
// or typed into the editor: zero-width space/joiner/non-joiner and the
// byte-order-mark, which survive copy-paste from chat apps and otherwise
// silently corrupt anchor matching downstream.
var zeroWidthChars = []rune{
	'\u200b', // ZERO WIDTH SPACE
	'\u200c', // ZERO WIDTH NON-JOINER
	'\u200d', // ZERO WIDTH JOINER
	'\ufeff', // ZERO WIDTH NO-BREAK SPACE / BOM
}

var runsOfNewlines = regexp.MustCompile(`\n{3,}`)

// NormalizeText strips zero-width characters and disallowed control
// characters, then collapses runs of 3+ newlines to exactly 2.
// Normalizing twice is idempotent: zero-width stripping and newline
// collapsing are both no-ops on already-normalized input.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isZeroWidth(r) {
			continue
		}
		if isDisallowedControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return runsOfNewlines.ReplaceAllString(b.String(), "\n\n")
}

func isZeroWidth(r rune) bool {
	for _, z := range zeroWidthChars {
		if r == z {
			return true
		}
	}
	return false
}

// isDisallowedControl reports whether r is a control character that has
// no place in post body text. Tab and newline are explicitly allowed;
// everything else in the C0/C1 control ranges is stripped.
func isDisallowedControl(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	return unicode.IsControl(r)
}

// hashPayload returns a short, stable hex digest of payload, used as the
// content-addressed component of a block or image identity.
func hashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// BlockID derives the stable content-addressed identity
// {type}:{sourceIndex}:hash(payload) for a text/section-title/image
// block.
func BlockID(blockType BlockType, sourceIndex int, payload string) string {
	return string(blockType) + ":" + strconv.Itoa(sourceIndex) + ":" + hashPayload(payload)
}

// ImageIdentity derives image:{imageIndex}:hash(absolutePath). Used to
// dedupe image insertions across retries even when the owning block's
// blockId differs (e.g. after a plan rebuild).
func ImageIdentity(imageIndex int, absolutePath string) string {
	return "image:" + strconv.Itoa(imageIndex) + ":" + hashPayload(absolutePath)
}
