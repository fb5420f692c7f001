package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

func TestStatusSuccessSince_RequiresBothMatchAndChange(t *testing.T) {
	snap := SignalSnapshot{StatusText: "Saved", StatusSuccess: true}
	assert.True(t, StatusSuccessSince(snap, "Saving..."))
	assert.False(t, StatusSuccessSince(snap, "Saved"))
}

func TestStatusSuccessSince_FalseWhenRegexDoesNotMatch(t *testing.T) {
	snap := SignalSnapshot{StatusText: "Editing", StatusSuccess: false}
	assert.False(t, StatusSuccessSince(snap, "Saving..."))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("temp save complete", successPhrases))
	assert.False(t, containsAny("draft in progress", successPhrases))
}

func TestSuccessPhrase_CanCoOccurWithFailurePhrase(t *testing.T) {
	norm := "saved with error"
	assert.True(t, containsAny(norm, successPhrases))
	assert.True(t, containsAny(norm, failurePhrases))
	// Detect() treats the presence of a failure phrase as disqualifying,
	// even when a success phrase also matches; exercised at the unit
	// level here since Detect itself requires a live browser context.
}

func TestClassifyBlockedURL_LoginCaptchaPath(t *testing.T) {
	reason, _, ok := classifyBlockedURL("https://nid.naver.com/login/captcha")
	assert.True(t, ok)
	assert.Equal(t, errs.CaptchaDetected, reason)
}

func TestClassifyBlockedURL_DedicatedCaptchaHost(t *testing.T) {
	reason, _, ok := classifyBlockedURL("https://captcha.naver.com/verify")
	assert.True(t, ok)
	assert.Equal(t, errs.CaptchaDetected, reason)
}

func TestClassifyBlockedURL_LoginRedirectIsSessionExpired(t *testing.T) {
	reason, _, ok := classifyBlockedURL("https://nidlogin.naver.com/nidlogin.login")
	assert.True(t, ok)
	assert.Equal(t, errs.SessionExpired, reason)
}

func TestClassifyBlockedURL_EditorURLMentioningAuthHostIsNotBlocked(t *testing.T) {
	// The auth host appearing in a query parameter must not trip the
	// detector; only a genuine redirect (origin change) counts.
	_, _, ok := classifyBlockedURL("https://blog.naver.com/PostWriteForm.naver?returnTo=nidlogin.naver.com")
	assert.False(t, ok)
}

func TestClassifyBlockedURL_NoMatchOnOrdinaryURL(t *testing.T) {
	_, _, ok := classifyBlockedURL("https://blog.naver.com/PostWriteForm.naver")
	assert.False(t, ok)
}

func TestClassifyBlockedBody_MapsEachCueToAClosedSetReason(t *testing.T) {
	cases := []struct {
		body   string
		reason errs.BlockedReason
	}{
		{"보안문자를 입력해 주세요", errs.CaptchaDetected},
		{"비정상적인 접근이 감지되었습니다", errs.SecurityCheckRequired},
		{"2단계 인증이 필요합니다", errs.TwoFactorRequired},
		{"본인확인이 필요합니다", errs.TwoFactorRequired},
		{"이용약관에 동의해야 합니다", errs.TermsAgreementRequired},
		{"세션이 만료되었습니다", errs.SessionExpired},
	}
	for _, tc := range cases {
		reason, _, ok := classifyBlockedBody(tc.body)
		assert.True(t, ok, tc.body)
		assert.Equal(t, tc.reason, reason, tc.body)
	}
}

func TestClassifyBlockedBody_NoMatchOnOrdinaryText(t *testing.T) {
	_, _, ok := classifyBlockedBody("the editor loaded successfully")
	assert.False(t, ok)
}
