package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// ClassifyError maps a fetch error to a stable, low-cardinality failure
// label. The labels feed policy calibration and alert thresholds, so new
// ones should be added sparingly.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return "connect-error"
		}
		return "network-error"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "connect-error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "network-error"
	}
	if strings.Contains(err.Error(), "connection refused") {
		return "connect-error"
	}
	return "unknown-fetch-error"
}

func classifyStatus(status int) string {
	switch status {
	case 401, 403, 404, 408, 409, 410, 418, 429:
		return fmt.Sprintf("http-%d", status)
	}
	if status >= 500 && status < 600 {
		return "http-5xx"
	}
	if status > 0 {
		return fmt.Sprintf("http-%d", status)
	}
	return "http-error"
}
