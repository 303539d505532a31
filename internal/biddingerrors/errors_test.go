package biddingerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http_404", err: &HTTPError{Status: 404, StatusText: "Not Found"}, want: false},
		{name: "http_504_mentions_timeout", err: &HTTPError{Status: 504, StatusText: "Gateway Timeout"}, want: false},
		{name: "wrapped_http_error", err: fmt.Errorf("place bid: %w", &HTTPError{Status: 409, Message: "bid too low"}), want: false},
		{name: "plain_404_text", err: errors.New("Error 404: Not Found"), want: false},
		{name: "network_error", err: &NetworkError{Op: "GET /auctions", Err: errors.New("refused")}, want: true},
		{name: "timeout_sentinel", err: fmt.Errorf("attempt 1: %w", ErrTimeout), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "caller_cancelled", err: context.Canceled, want: false},
		{name: "url_error", err: &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dial")}, want: true},
		{name: "op_error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, want: true},
		{name: "message_connection", err: errors.New("connection reset by peer"), want: true},
		{name: "message_aborted", err: errors.New("request Aborted"), want: true},
		{name: "validation", err: ErrInvalidBid, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestHTTPError_Message(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Error 500: Internal Server Error", (&HTTPError{Status: 500, StatusText: "Internal Server Error"}).Error())
	require.Equal(t, "auction has ended", (&HTTPError{Status: 400, StatusText: "Bad Request", Message: "auction has ended"}).Error())
}
