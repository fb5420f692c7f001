package netutil

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.True(t, IsConnectionError(&net.OpError{Op: "dial", Err: errors.New("boom")}))
	assert.True(t, IsConnectionError(&net.DNSError{Err: "no such host"}))
	assert.True(t, IsConnectionError(errors.New("connection refused")))
	assert.False(t, IsConnectionError(errors.New("some other failure")))
}

func TestWaitForDevToolsEndpoint_TimesOutWhenNothingListening(t *testing.T) {
	ok := WaitForDevToolsEndpoint("127.0.0.1", 1, 0)
	assert.False(t, ok)
}
