package nav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBodySize is the maximum size of provider body kept on an error
const maxErrorBodySize = 500

var (
	// ErrMissingConfiguration is returned when the provider access token is absent
	ErrMissingConfiguration = errors.New("provider access token not configured")

	// ErrNoRouteFound is returned when the directions provider returns zero candidates
	ErrNoRouteFound = errors.New("no route found")

	// ErrCollaboratorUnavailable matches every *CollaboratorError via errors.Is
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// CollaboratorError represents a transport failure or a non-success response from the provider
type CollaboratorError struct {
	Op         string
	StatusCode int
	Body       string
	URL        string
	Err        error
}

func (e *CollaboratorError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, http.StatusText(e.StatusCode), e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, http.StatusText(e.StatusCode), e.StatusCode)
	}
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCollaboratorUnavailable) match
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

// Retryable reports whether the caller may offer a retry action
func (e *CollaboratorError) Retryable() bool {
	return true
}

// IsRetryable reports whether err carries a retryable collaborator failure
func IsRetryable(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce) && ce.Retryable()
}

// truncate truncates a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// parseErrorResponse returns a CollaboratorError for 4xx/5xx responses and nil otherwise.
// The body is re-wrapped so the caller can still read it.
func parseErrorResponse(op string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	bodyStr := ""
	if err == nil && len(bodyBytes) > 0 {
		bodyStr = truncate(string(bodyBytes), maxErrorBodySize)
	}

	ce := &CollaboratorError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       bodyStr,
	}
	if resp.Request != nil {
		ce.URL = redactToken(resp.Request.URL.String())
	}
	return ce
}
