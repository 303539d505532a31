package biddingerrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrUserNoCars      = errors.New("user has no cars")
)

// business logic errors
var (
	ErrInvalidBid       = errors.New("invalid bid")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrInvalidAuction   = errors.New("invalid auction")
)

// client-side errors
var (
	ErrNotConnected = errors.New("live channel not connected")
	ErrClientClosed = errors.New("client closed")
	ErrStoreClosed  = errors.New("store closed")
	ErrTimeout      = errors.New("request timeout")
)

// HTTPError is a well-formed error response from the auction service.
// It is never retried.
type HTTPError struct {
	Status     int
	StatusText string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Error %d: %s", e.Status, e.StatusText)
}

// NetworkError wraps a transport-level failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

var retryableHints = []string{"network", "fetch", "connection", "timeout", "aborted"}

// IsRetryable reports whether err is a network-class failure that may
// succeed when the call is repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr net.Error
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
