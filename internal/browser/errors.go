// internal/browser/errors.go
package browser

import "fmt"

// SessionStartError reports that a browser session could not be brought up:
// the browser failed to launch or the first navigation to the base URL failed.
// It is fatal for the scenario that requested the session.
type SessionStartError struct {
	BaseURL string
	Cause   error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start browser session for %s: %v", e.BaseURL, e.Cause)
}

func (e *SessionStartError) Unwrap() error { return e.Cause }
