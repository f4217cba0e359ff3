package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

// StatusError is a non-2xx answer from a backend we call over HTTP.
type StatusError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %s", e.Service, e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

const maxErrorBody = 4096

// CheckResponse turns a non-2xx response into a *StatusError with a bounded body excerpt.
// The body is not closed.
func CheckResponse(resp *http.Response, service, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Service:    service,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
