// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodySnippet caps how much of an error response body is kept for
// diagnosis.
const maxBodySnippet = 2048

// StatusError reports a non-2xx HTTP response together with the start of
// its body.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// CheckResponse returns a *StatusError for responses outside 2xx. The body is
// read (up to a limit) but not closed; the caller still owns it.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	se := &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		se.URL = resp.Request.URL.Redacted()
	}
	return se
}

// NewClient returns an http.Client with the given timeout. A zero timeout
// falls back to def so no remote call can hang a worker forever.
func NewClient(timeout, def time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = def
	}
	return &http.Client{Timeout: timeout}
}
