// internal/pages/errors.go
package pages

import "fmt"

// AuthenticationError reports that the application rejected the credentials,
// or that login could not be confirmed. It is an expected, assertable outcome.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed: %v", e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// DataLoadFailure reports that the device list never settled or that the page
// showed an explicit error instead of it.
type DataLoadFailure struct {
	Reason string
	Cause  error
}

func (e *DataLoadFailure) Error() string {
	if e.Cause == nil {
		return "device list failed to load: " + e.Reason
	}
	return fmt.Sprintf("device list failed to load: %s: %v", e.Reason, e.Cause)
}

func (e *DataLoadFailure) Unwrap() error { return e.Cause }

// ModalError reports a welcome modal that was shown but could not be dismissed.
type ModalError struct {
	Cause error
}

func (e *ModalError) Error() string {
	return fmt.Sprintf("welcome modal could not be dismissed: %v", e.Cause)
}

func (e *ModalError) Unwrap() error { return e.Cause }
