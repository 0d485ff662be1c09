package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/local/shasdl/internal/storage"
)

type errorClass int

const (
	classTransient errorClass = iota
	classMissing
	classPermanent
)

// classify decides whether a download error is retried.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return classMissing
	case storage.IsPermanent(err):
		return classPermanent
	case errors.Is(err, context.Canceled):
		return classPermanent
	}

	var httpErr *storage.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
			httpErr.StatusCode != http.StatusTooManyRequests && httpErr.StatusCode != http.StatusRequestTimeout {
			return classPermanent
		}
	}
	return classTransient
}

// isThrottle reports whether the source asked us to slow down.
func isThrottle(err error) bool {
	if storage.IsThrottled(err) {
		return true
	}
	var httpErr *storage.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// isTimeout checks if error is specifically a timeout
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
