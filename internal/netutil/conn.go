// conn.go — Connection helpers for the remote Chrome DevTools endpoint:
// error classification and readiness polling.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// IsConnectionError returns true if err indicates the remote browser's
// DevTools endpoint is unreachable (as opposed to a protocol-level error
// once connected).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	// Prefer typed error checks over string matching.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	// Fallback: string check for wrapped errors that lose type info.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}

// IsDevToolsEndpointUp checks whether a Chrome DevTools Protocol endpoint
// is accepting connections by probing /json/version.
func IsDevToolsEndpointUp(host string, port int) bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/json/version", host, port))
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// WaitForDevToolsEndpoint polls until the DevTools endpoint accepts
// connections or timeout elapses.
func WaitForDevToolsEndpoint(host string, port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsDevToolsEndpointUp(host, port) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
