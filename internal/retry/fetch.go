package retry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"auction-sync/internal/biddingerrors"
)

// Request describes one HTTP call. It is rebuilt for every attempt.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully read HTTP response with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorBody is the error payload returned by the auction service.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Fetch performs req with retry on transport failures. Non-2xx responses
// are returned as *biddingerrors.HTTPError and are not retried.
func Fetch(ctx context.Context, client *http.Client, req Request, opts Options) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	return Do(ctx, opts, func(ctx context.Context) (*Response, error) {
		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for key, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
		if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return nil, &biddingerrors.NetworkError{Op: req.Method + " " + req.URL, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &biddingerrors.NetworkError{Op: "read response", Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, parseHTTPError(resp.StatusCode, respBody)
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}, nil
	})
}

func parseHTTPError(status int, body []byte) *biddingerrors.HTTPError {
	httpErr := &biddingerrors.HTTPError{
		Status:     status,
		StatusText: http.StatusText(status),
	}

	var payload errorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			httpErr.Message = payload.Message
		} else {
			httpErr.Message = payload.Error
		}
	}
	return httpErr
}
